package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/schema"
)

var _ schema.Backend = (*Store)(nil)

// identifier matches table and column names the store is willing to
// interpolate into DDL.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdentifier(kind, name string) error {
	if !identifier.MatchString(name) {
		return errors.Wrapf(errors.ErrIllegalArgument, "%s %q is not a valid SQL identifier", kind, name)
	}
	return nil
}

// Begin starts a schema transaction.
func (s *Store) Begin(ctx context.Context) (schema.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &schemaTx{s: s, tx: tx}, nil
}

// schemaTx applies schema changes and the instance data they imply in one
// SQLite transaction.
type schemaTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *schemaTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *schemaTx) CreateAttributeClass(ctx context.Context, rec ir.AttributeClassRecord) error {
	if rec.DBTable != "" {
		if err := checkIdentifier("value table", rec.DBTable); err != nil {
			return err
		}
	}
	_, err := t.exec(ctx, `INSERT INTO coral_attribute_class
		(attribute_class_id, name, native_type, handler, db_table) VALUES (?, ?, ?, ?, ?)`,
		int64(rec.ID), rec.Name, rec.NativeType, rec.Handler, rec.DBTable)
	if err != nil {
		return fmt.Errorf("create attribute class %s: %w", rec.Name, err)
	}
	return nil
}

func (t *schemaTx) CreateResourceClass(ctx context.Context, rec ir.ResourceClassRecord) (ir.ClassID, error) {
	if rec.Handler == schema.StorageTabular {
		if err := checkIdentifier("class table", rec.DBTable); err != nil {
			return 0, err
		}
		_, err := t.exec(ctx, fmt.Sprintf(`CREATE TABLE %s (
			resource_id INTEGER PRIMARY KEY REFERENCES coral_resource(resource_id) ON DELETE CASCADE
		)`, rec.DBTable))
		if err != nil {
			return 0, fmt.Errorf("create table of class %s: %w", rec.Name, err)
		}
	}
	res, err := t.exec(ctx, `INSERT INTO coral_resource_class
		(name, native_type, handler, db_table, flags) VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.NativeType, rec.Handler, rec.DBTable, int64(rec.Flags))
	if err != nil {
		return 0, fmt.Errorf("create resource class %s: %w", rec.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return ir.ClassID(id), nil
}

func (t *schemaTx) UpdateResourceClass(ctx context.Context, rec ir.ResourceClassRecord) error {
	res, err := t.exec(ctx, `UPDATE coral_resource_class
		SET name = ?, native_type = ?, handler = ?, db_table = ?, flags = ?
		WHERE resource_class_id = ?`,
		rec.Name, rec.NativeType, rec.Handler, rec.DBTable, int64(rec.Flags), int64(rec.ID))
	if err != nil {
		return fmt.Errorf("update resource class %s: %w", rec.Name, err)
	}
	return expectOne(res, "resource class", rec.ID.String())
}

func (t *schemaTx) DeleteResourceClass(ctx context.Context, rec ir.ResourceClassRecord) error {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coral_resource WHERE resource_class_id = ?`, int64(rec.ID)).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.Newf("resource class %s still has %d instance(s)", rec.Name, n)
	}
	if _, err := t.exec(ctx, `DELETE FROM coral_resource_class_permission WHERE resource_class_id = ?`, int64(rec.ID)); err != nil {
		return err
	}
	res, err := t.exec(ctx, `DELETE FROM coral_resource_class WHERE resource_class_id = ?`, int64(rec.ID))
	if err != nil {
		return fmt.Errorf("delete resource class %s: %w", rec.Name, err)
	}
	if err := expectOne(res, "resource class", rec.ID.String()); err != nil {
		return err
	}
	if rec.Handler == schema.StorageTabular && rec.DBTable != "" {
		if err := checkIdentifier("class table", rec.DBTable); err != nil {
			return err
		}
		if _, err := t.exec(ctx, "DROP TABLE IF EXISTS "+rec.DBTable); err != nil {
			return fmt.Errorf("drop table of class %s: %w", rec.Name, err)
		}
	}
	return nil
}

func (t *schemaTx) AddAttribute(ctx context.Context, ch schema.AttributeChange) (ir.AttrID, error) {
	a := ch.Attribute
	instances, err := t.countInstances(ctx, ch.Classes)
	if err != nil {
		return 0, err
	}
	if a.Flags.Has(ir.AttrRequired) && ch.Initial == nil && instances > 0 {
		return 0, &errors.ValueRequiredError{Attribute: a.Name, Class: ch.Declaring.Name, Instances: instances}
	}

	res, err := t.exec(ctx, `INSERT INTO coral_attribute_definition
		(resource_class_id, attribute_class_id, name, domain, flags) VALUES (?, ?, ?, ?, ?)`,
		int64(a.ClassID), int64(a.TypeID), a.Name, a.Domain, int64(a.Flags))
	if err != nil {
		return 0, fmt.Errorf("add attribute %s: %w", a.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	ch.Attribute.ID = ir.AttrID(id)

	if ch.Declaring.Handler == schema.StorageTabular {
		if err := t.addColumn(ctx, ch); err != nil {
			return 0, err
		}
	} else if err := t.ensureValueTable(ctx, ch); err != nil {
		return 0, err
	}
	if ch.Initial != nil && instances > 0 {
		if err := t.initialize(ctx, ch); err != nil {
			return 0, err
		}
	}
	return ir.AttrID(id), nil
}

func (t *schemaTx) DeleteAttribute(ctx context.Context, ch schema.AttributeChange) error {
	if ch.Declaring.Handler == schema.StorageTabular {
		if err := checkIdentifier("column", ch.Attribute.Name); err != nil {
			return err
		}
		if err := checkIdentifier("class table", ch.Declaring.DBTable); err != nil {
			return err
		}
		_, err := t.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", ch.Declaring.DBTable, ch.Attribute.Name))
		if err != nil {
			return fmt.Errorf("drop column %s: %w", ch.Attribute.Name, err)
		}
	} else if err := t.dropGenericValues(ctx, ch, nil); err != nil {
		return err
	}
	res, err := t.exec(ctx, `DELETE FROM coral_attribute_definition WHERE attribute_definition_id = ?`,
		int64(ch.Attribute.ID))
	if err != nil {
		return fmt.Errorf("delete attribute %s: %w", ch.Attribute.Name, err)
	}
	return expectOne(res, "attribute", ch.Attribute.ID.String())
}

func (t *schemaTx) AddInheritance(ctx context.Context, ch schema.InheritanceChange) error {
	_, err := t.exec(ctx, `INSERT INTO coral_resource_class_inheritance (parent, child) VALUES (?, ?)`,
		int64(ch.Edge.Parent), int64(ch.Edge.Child))
	if err != nil {
		return fmt.Errorf("add inheritance %d -> %d: %w", ch.Edge.Parent, ch.Edge.Child, err)
	}
	for _, g := range ch.Gained {
		instances, err := t.countInstances(ctx, g.Classes)
		if err != nil {
			return err
		}
		if instances == 0 {
			continue
		}
		if g.Attribute.Flags.Has(ir.AttrRequired) && g.Initial == nil {
			return &errors.ValueRequiredError{Attribute: g.Attribute.Name, Class: g.Declaring.Name, Instances: instances}
		}
		if g.Declaring.Handler == schema.StorageTabular {
			if err := t.addTabularRows(ctx, g.Declaring.DBTable, g.Classes); err != nil {
				return err
			}
		}
		if g.Initial != nil {
			if err := t.initialize(ctx, g); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *schemaTx) DeleteInheritance(ctx context.Context, ch schema.InheritanceChange) error {
	res, err := t.exec(ctx, `DELETE FROM coral_resource_class_inheritance WHERE parent = ? AND child = ?`,
		int64(ch.Edge.Parent), int64(ch.Edge.Child))
	if err != nil {
		return fmt.Errorf("delete inheritance %d -> %d: %w", ch.Edge.Parent, ch.Edge.Child, err)
	}
	if err := expectOne(res, "inheritance edge", fmt.Sprintf("%d -> %d", ch.Edge.Parent, ch.Edge.Child)); err != nil {
		return err
	}
	for _, l := range ch.Lost {
		if l.Declaring.Handler == schema.StorageTabular {
			if err := checkIdentifier("class table", l.Declaring.DBTable); err != nil {
				return err
			}
			q := fmt.Sprintf(`DELETE FROM %s WHERE resource_id IN
				(SELECT resource_id FROM coral_resource WHERE resource_class_id IN (%s))`,
				l.Declaring.DBTable, idList(l.Classes))
			if _, err := t.exec(ctx, q); err != nil {
				return err
			}
			continue
		}
		if err := t.dropGenericValues(ctx, l, l.Classes); err != nil {
			return err
		}
	}
	return nil
}

func (t *schemaTx) AddPermission(ctx context.Context, rec ir.PermissionRecord) error {
	_, err := t.exec(ctx, `INSERT OR IGNORE INTO coral_resource_class_permission
		(resource_class_id, permission) VALUES (?, ?)`, int64(rec.ClassID), rec.Permission)
	return err
}

func (t *schemaTx) Commit() error {
	return t.tx.Commit()
}

func (t *schemaTx) Rollback() error {
	err := t.tx.Rollback()
	if err == nil || errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *schemaTx) countInstances(ctx context.Context, classes []ir.ClassID) (int, error) {
	if len(classes) == 0 {
		return 0, nil
	}
	var n int
	err := t.tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM coral_resource WHERE resource_class_id IN (%s)`, idList(classes))).Scan(&n)
	return n, err
}

// ensureValueTable creates the value table of a custom attribute type on
// first use.
func (t *schemaTx) ensureValueTable(ctx context.Context, ch schema.AttributeChange) error {
	table := ch.Type.DBTable
	if err := checkIdentifier("value table", table); err != nil {
		return err
	}
	if err := checkIdentifier("value column", ch.ValueColumn); err != nil {
		return err
	}
	_, err := t.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		data_key INTEGER PRIMARY KEY AUTOINCREMENT,
		%s %s
	)`, table, ch.ValueColumn, ch.SQLType))
	return err
}

func (t *schemaTx) addColumn(ctx context.Context, ch schema.AttributeChange) error {
	table := ch.Declaring.DBTable
	if err := checkIdentifier("class table", table); err != nil {
		return err
	}
	if err := checkIdentifier("column", ch.Attribute.Name); err != nil {
		return err
	}
	_, err := t.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, ch.Attribute.Name, ch.SQLType))
	if err != nil {
		return fmt.Errorf("add column %s to %s: %w", ch.Attribute.Name, table, err)
	}
	return t.addTabularRows(ctx, table, ch.Classes)
}

// addTabularRows gives every instance of classes a row in table.
func (t *schemaTx) addTabularRows(ctx context.Context, table string, classes []ir.ClassID) error {
	if err := checkIdentifier("class table", table); err != nil {
		return err
	}
	_, err := t.exec(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (resource_id)
		SELECT resource_id FROM coral_resource WHERE resource_class_id IN (%s)`, table, idList(classes)))
	return err
}

// initialize stores ch.Initial for every instance of ch.Classes.
func (t *schemaTx) initialize(ctx context.Context, ch schema.AttributeChange) error {
	v := ir.GoValue(ch.Initial)
	if ch.Declaring.Handler == schema.StorageTabular {
		_, err := t.exec(ctx, fmt.Sprintf(`UPDATE %s SET %s = ? WHERE resource_id IN
			(SELECT resource_id FROM coral_resource WHERE resource_class_id IN (%s))`,
			ch.Declaring.DBTable, ch.Attribute.Name, idList(ch.Classes)), v)
		return err
	}

	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT resource_id FROM coral_resource WHERE resource_class_id IN (%s) ORDER BY resource_id`,
		idList(ch.Classes)))
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := insertGeneric(ctx, t.tx, ch.Type.DBTable, ch.ValueColumn, id, ch.Attribute.ID, v); err != nil {
			return err
		}
	}
	return nil
}

// dropGenericValues deletes the values of a generic attribute, restricted
// to instances of classes when classes is non-nil.
func (t *schemaTx) dropGenericValues(ctx context.Context, ch schema.AttributeChange, classes []ir.ClassID) error {
	if err := checkIdentifier("value table", ch.Type.DBTable); err != nil {
		return err
	}
	scope := ""
	if classes != nil {
		scope = fmt.Sprintf(` AND resource_id IN
			(SELECT resource_id FROM coral_resource WHERE resource_class_id IN (%s))`, idList(classes))
	}
	_, err := t.exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE data_key IN
		(SELECT data_key FROM coral_generic_resource WHERE attribute_definition_id = ?%s)`,
		ch.Type.DBTable, scope), int64(ch.Attribute.ID))
	if err != nil {
		return err
	}
	_, err = t.exec(ctx, `DELETE FROM coral_generic_resource WHERE attribute_definition_id = ?`+scope,
		int64(ch.Attribute.ID))
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertGeneric stores one generic value row and links it to the resource.
func insertGeneric(ctx context.Context, db execer, table, column string, resource int64, attr ir.AttrID, v any) error {
	res, err := db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", table, column), v)
	if err != nil {
		return err
	}
	key, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO coral_generic_resource
		(resource_id, attribute_definition_id, data_key) VALUES (?, ?, ?)`, resource, int64(attr), key)
	return err
}

func idList(ids []ir.ClassID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func expectOne(res sql.Result, kind, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &errors.EntityDoesNotExistError{Kind: kind, Key: key}
	}
	return nil
}
