package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/results"
	"github.com/objectledge/coral/internal/schema"
)

var (
	_ results.Resolver    = (*Resources)(nil)
	_ attrtype.RefChecker = (*Resources)(nil)
	_ results.Resource    = (*Resource)(nil)
)

// Resources stores resource instances of the classes in a graph whose
// backend is the same Store. It also runs RML queries against them.
type Resources struct {
	s        *Store
	g        *schema.Graph
	compiler *querysql.Compiler
	cache    *querysql.Cache
	log      *zap.SugaredLogger
}

// NewResources creates the instance store and installs it as the
// registry's reference checker. Queries are cached when the graph has an
// event hub.
func NewResources(s *Store, g *schema.Graph, opts ...querysql.Option) *Resources {
	opts = append([]querysql.Option{querysql.WithLogger(s.log)}, opts...)
	r := &Resources{
		s:        s,
		g:        g,
		compiler: querysql.NewCompiler(g, opts...),
		log:      s.log,
	}
	if hub := g.Hub(); hub != nil {
		r.cache = querysql.NewCache(r.compiler, hub)
	}
	g.Registry().SetRefChecker(r)
	return r
}

// Close releases the query cache.
func (r *Resources) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}

// Graph returns the schema the store works with.
func (r *Resources) Graph() *schema.Graph { return r.g }

// Resource is a loaded resource. Builtin attributes are read when the
// resource is loaded; other values are read on demand.
type Resource struct {
	r     *Resources
	id    ir.ResourceID
	class *schema.ResourceClass
	name  string

	parent     ir.ResourceID
	owner      ir.ResourceID
	createdBy  ir.ResourceID
	modifiedBy ir.ResourceID
	created    time.Time
	modified   time.Time
}

func (res *Resource) ID() ir.ResourceID            { return res.id }
func (res *Resource) Name() string                 { return res.name }
func (res *Resource) Class() *schema.ResourceClass { return res.class }
func (res *Resource) Parent() ir.ResourceID        { return res.parent }
func (res *Resource) CreationTime() time.Time      { return res.created }
func (res *Resource) ModificationTime() time.Time  { return res.modified }
func (res *Resource) String() string               { return fmt.Sprintf("%s #%d", res.name, res.id) }

// Value returns the value of a, or ir.Null when the resource has none.
func (res *Resource) Value(ctx context.Context, a *schema.AttributeDefinition) (ir.Value, error) {
	if a.Has(ir.AttrBuiltin) {
		return res.builtin(a.Name())
	}
	if !res.class.HasDefinition(a) {
		return nil, errors.Wrapf(errors.ErrIllegalArgument, "%s has no attribute %s", res.class.Name(), a.Name())
	}
	return res.r.readValue(ctx, res.id, a)
}

// Get returns the value of the named attribute.
func (res *Resource) Get(ctx context.Context, name string) (ir.Value, error) {
	a, err := querysql.LookupAttribute(res.r.g.Node(), res.class, name)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &schema.UnknownAttributeError{Class: res.class.Name(), Attribute: name}
	}
	return res.Value(ctx, a)
}

func ref(id ir.ResourceID) ir.Value {
	if id == 0 {
		return ir.Null{}
	}
	return ir.Ref(id)
}

func (res *Resource) builtin(name string) (ir.Value, error) {
	switch name {
	case "id":
		return ir.Ref(res.id), nil
	case "name":
		return ir.String(res.name), nil
	case "parent":
		return ref(res.parent), nil
	case "owner":
		return ref(res.owner), nil
	case "created_by":
		return ref(res.createdBy), nil
	case "creation_time":
		return ir.NewTime(res.created), nil
	case "modified_by":
		return ref(res.modifiedBy), nil
	case "modification_time":
		return ir.NewTime(res.modified), nil
	}
	return nil, errors.Newf("unknown builtin attribute %s", name)
}

// CreateResource creates an instance of class. values holds the initial
// attribute values by name; every REQUIRED attribute must be given.
func (r *Resources) CreateResource(ctx context.Context, class *schema.ResourceClass, name string, parent ir.ResourceID, values map[string]ir.Value) (*Resource, error) {
	const op = "create resource"
	if name == "" {
		return nil, errors.Wrap(errors.ErrIllegalArgument, "resource name is empty")
	}
	if class.Flags().Has(ir.ClassAbstract) {
		return nil, &schema.IllegalStateError{Op: op, Reason: "class " + class.Name() + " is abstract"}
	}
	if parent != 0 {
		if _, err := r.Load(ctx, parent); err != nil {
			return nil, err
		}
	}

	for n := range values {
		if _, ok := schema.BuiltinColumn(n); ok {
			return nil, errors.Wrapf(errors.ErrIllegalArgument, "builtin attribute %s cannot be assigned", n)
		}
		if _, err := class.Attribute(n); err != nil {
			return nil, err
		}
	}

	type assignment struct {
		a *schema.AttributeDefinition
		v ir.Value
	}
	var assigned []assignment
	for _, a := range class.AllAttributes() {
		if a.Has(ir.AttrBuiltin) {
			continue
		}
		v, given := values[a.Name()]
		if ir.IsNull(v) {
			if a.Has(ir.AttrRequired) {
				return nil, &errors.ValueRequiredError{Attribute: a.Name(), Class: class.Name(), Instances: 1}
			}
			continue
		}
		if err := a.CheckValue(v); err != nil {
			return nil, err
		}
		if given {
			assigned = append(assigned, assignment{a, v})
		}
	}

	now := r.s.clock.Now().UTC().Truncate(time.Second)
	res := &Resource{r: r, class: class, name: name, parent: parent, created: now, modified: now}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var parentArg any
		if parent != 0 {
			parentArg = int64(parent)
		}
		out, err := tx.ExecContext(ctx, `INSERT INTO coral_resource
			(resource_class_id, name, parent, creation_time, modification_time) VALUES (?, ?, ?, ?, ?)`,
			int64(class.ID()), name, parentArg, formatTime(now), formatTime(now))
		if err != nil {
			return err
		}
		id, err := out.LastInsertId()
		if err != nil {
			return err
		}
		res.id = ir.ResourceID(id)

		for _, c := range append([]*schema.ResourceClass{class}, class.ParentClasses()...) {
			if c.Handler() != schema.StorageTabular {
				continue
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (resource_id) VALUES (?)", c.Table()), id); err != nil {
				return err
			}
		}
		for _, as := range assigned {
			if err := r.writeValue(ctx, tx, res.id, as.a, as.v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	r.log.Debugw("resource created", "id", int64(res.id), "class", class.Name(), "name", name)
	return res, nil
}

// SetValue assigns the named attribute of resource id. ir.Null clears it.
func (r *Resources) SetValue(ctx context.Context, id ir.ResourceID, name string, v ir.Value) error {
	const op = "set value"
	res, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := schema.BuiltinColumn(name); ok {
		return &schema.IllegalStateError{Op: op, Reason: "attribute " + name + " is read-only"}
	}
	a, err := res.class.Attribute(name)
	if err != nil {
		return err
	}
	if a.Has(ir.AttrReadOnly) {
		return &schema.IllegalStateError{Op: op, Reason: "attribute " + name + " is read-only"}
	}
	if ir.IsNull(v) && a.Has(ir.AttrRequired) {
		return &errors.ValueRequiredError{Attribute: name, Class: res.class.Name(), Instances: 1}
	}
	if err := a.CheckValue(v); err != nil {
		return err
	}

	now := formatTime(r.s.clock.Now())
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.writeValue(ctx, tx, id, a, v); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE coral_resource SET modification_time = ? WHERE resource_id = ?`,
			now, int64(id))
		return err
	})
	if err != nil {
		return errors.NewBackendError(op, err)
	}
	return nil
}

// DeleteResource removes a resource and its values. Resources that have
// children cannot be deleted.
func (r *Resources) DeleteResource(ctx context.Context, id ir.ResourceID) error {
	const op = "delete resource"
	res, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range res.class.AllAttributes() {
			if a.Has(ir.AttrBuiltin) {
				continue
			}
			declaring, err := r.g.ResourceClassByID(a.DeclaringClassID())
			if err != nil {
				return err
			}
			if declaring.Handler() == schema.StorageTabular {
				continue
			}
			if err := deleteGeneric(ctx, tx, id, a); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM coral_resource WHERE resource_id = ?`, int64(id))
		return err
	})
	if err != nil {
		return errors.NewBackendError(op, err)
	}
	r.log.Debugw("resource deleted", "id", int64(id))
	return nil
}

// Load reads a resource by id.
func (r *Resources) Load(ctx context.Context, id ir.ResourceID) (*Resource, error) {
	var (
		classID                              int64
		name, created, modified              string
		parent, owner, createdBy, modifiedBy sql.NullInt64
	)
	err := r.s.db.QueryRowContext(ctx, `SELECT resource_class_id, name, parent, owned_by, created_by,
		creation_time, modified_by, modification_time FROM coral_resource WHERE resource_id = ?`, int64(id)).
		Scan(&classID, &name, &parent, &owner, &createdBy, &created, &modifiedBy, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errors.EntityDoesNotExistError{Kind: "resource", Key: id.String()}
	}
	if err != nil {
		return nil, errors.NewBackendError("load resource", err)
	}
	class, err := r.g.ResourceClassByID(ir.ClassID(classID))
	if err != nil {
		return nil, errors.NewBackendError("load resource", err)
	}
	res := &Resource{
		r: r, id: id, class: class, name: name,
		parent:     ir.ResourceID(parent.Int64),
		owner:      ir.ResourceID(owner.Int64),
		createdBy:  ir.ResourceID(createdBy.Int64),
		modifiedBy: ir.ResourceID(modifiedBy.Int64),
	}
	if res.created, err = parseTime(created); err != nil {
		return nil, errors.NewBackendError("load resource", err)
	}
	if res.modified, err = parseTime(modified); err != nil {
		return nil, errors.NewBackendError("load resource", err)
	}
	return res, nil
}

// Resource implements results.Resolver.
func (r *Resources) Resource(ctx context.Context, id ir.ResourceID) (results.Resource, error) {
	res, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ClassOf returns the class of resource id.
func (r *Resources) ClassOf(ctx context.Context, id ir.ResourceID) (*schema.ResourceClass, error) {
	res, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return res.class, nil
}

// IsInstanceOf reports whether resource id belongs to the named class or
// one of its subclasses. Unknown resources are not instances of anything.
func (r *Resources) IsInstanceOf(id ir.ResourceID, className string) (bool, error) {
	target, err := r.g.ResourceClass(className)
	if err != nil {
		return false, err
	}
	class, err := r.ClassOf(context.Background(), id)
	if errors.IsEntityDoesNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return class.IsA(target), nil
}

// Compile compiles an RML statement, through the cache when there is one.
func (r *Resources) Compile(text string) (*querysql.CompiledQuery, error) {
	if r.cache != nil {
		return r.cache.CompileText(text)
	}
	return r.compiler.CompileText(text)
}

// Query compiles and executes an RML statement.
func (r *Resources) Query(ctx context.Context, text string) (*results.QueryResults, error) {
	cq, err := r.Compile(text)
	if err != nil {
		return nil, err
	}
	return results.Execute(ctx, r.s.db, cq, r)
}

// QueryFiltered executes a statement with a SELECT list and projects its
// values.
func (r *Resources) QueryFiltered(ctx context.Context, text string) (*results.FilteredQueryResults, error) {
	qr, err := r.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	selects := qr.Query().Select
	if len(selects) == 0 {
		return nil, errors.Wrap(errors.ErrIllegalArgument, "statement has no SELECT list")
	}
	return results.NewFiltered(qr, selects, r.g)
}

func (r *Resources) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Errorw("resource rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// storage returns where a's values live: the declaring class's table and
// column for tabular classes, or "" for generic storage.
func (r *Resources) storage(a *schema.AttributeDefinition) (table string, err error) {
	declaring, err := r.g.ResourceClassByID(a.DeclaringClassID())
	if err != nil {
		return "", err
	}
	if declaring.Handler() == schema.StorageTabular {
		return declaring.Table(), nil
	}
	return "", nil
}

func (r *Resources) writeValue(ctx context.Context, tx *sql.Tx, id ir.ResourceID, a *schema.AttributeDefinition, v ir.Value) error {
	table, err := r.storage(a)
	if err != nil {
		return err
	}
	if table != "" {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE resource_id = ?", table, a.Name()),
			encodeValue(v), int64(id))
		return err
	}
	if err := deleteGeneric(ctx, tx, id, a); err != nil {
		return err
	}
	if ir.IsNull(v) {
		return nil
	}
	return insertGeneric(ctx, tx, a.Type().DBTable, a.Handler().ValueColumn(), int64(id), a.ID(), encodeValue(v))
}

func deleteGeneric(ctx context.Context, tx *sql.Tx, id ir.ResourceID, a *schema.AttributeDefinition) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE data_key IN
		(SELECT data_key FROM coral_generic_resource WHERE resource_id = ? AND attribute_definition_id = ?)`,
		a.Type().DBTable), int64(id), int64(a.ID()))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM coral_generic_resource WHERE resource_id = ? AND attribute_definition_id = ?`,
		int64(id), int64(a.ID()))
	return err
}

func (r *Resources) readValue(ctx context.Context, id ir.ResourceID, a *schema.AttributeDefinition) (ir.Value, error) {
	const op = "read value"
	table, err := r.storage(a)
	if err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	var query string
	var args []any
	if table != "" {
		query = fmt.Sprintf("SELECT %s FROM %s WHERE resource_id = ?", a.Name(), table)
		args = []any{int64(id)}
	} else {
		query = fmt.Sprintf(`SELECT v.%s FROM coral_generic_resource g JOIN %s v ON v.data_key = g.data_key
			WHERE g.resource_id = ? AND g.attribute_definition_id = ?`, a.Handler().ValueColumn(), a.Type().DBTable)
		args = []any{int64(id), int64(a.ID())}
	}

	var raw any
	err = r.s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Null{}, nil
	}
	if err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	v, err := decodeValue(a.Kind(), raw)
	if err != nil {
		return nil, errors.NewBackendError(op, err)
	}
	return v, nil
}
