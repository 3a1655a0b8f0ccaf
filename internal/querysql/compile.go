package querysql

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/objectledge/coral/internal/attrtype"
	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
	"github.com/objectledge/coral/internal/queryir"
	"github.com/objectledge/coral/internal/rml"
	"github.com/objectledge/coral/internal/schema"
)

// Schema is the part of the resource class graph the compiler reads.
type Schema interface {
	ResourceClass(name string) (*schema.ResourceClass, error)
	ResourceClassByID(id ir.ClassID) (*schema.ResourceClass, error)
	Node() *schema.ResourceClass
}

// CompiledQuery is the SQL for one statement plus the metadata needed to
// materialize its results.
type CompiledQuery struct {
	// Query is the statement text.
	Query string

	// SQL selects one resource_id per column, in column order.
	SQL string

	// Columns describes the FROM list.
	Columns []*ResultColumn

	// Select is the statement's SELECT list, resolved later against the
	// results.
	Select []string
}

// Compiler compiles RML statements to SQL.
//
// The compiler keeps no per-call state. It is safe for concurrent use as
// long as the schema is.
type Compiler struct {
	schema     Schema
	subclasses bool
	strategies map[string]JoinStrategy
	log        *zap.SugaredLogger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithSubclassMatching makes a FROM class match instances of its
// subclasses too.
func WithSubclassMatching(on bool) Option {
	return func(c *Compiler) { c.subclasses = on }
}

// WithJoinStrategy registers the join strategy for a class storage handler.
func WithJoinStrategy(handler string, s JoinStrategy) Option {
	return func(c *Compiler) { c.strategies[handler] = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Compiler) { c.log = l }
}

// NewCompiler creates a compiler reading the given schema.
func NewCompiler(s Schema, opts ...Option) *Compiler {
	c := &Compiler{
		schema:     s,
		strategies: defaultStrategies(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Or(c.log)
	return c
}

// CompileText parses and compiles a statement. A statement that does not
// start with FIND RESOURCE fails before anything else is parsed.
func (c *Compiler) CompileText(text string) (*CompiledQuery, error) {
	stmt, err := rml.Parse(text)
	if err != nil {
		return nil, &MalformedQueryError{Code: CodeSyntax, Query: text, Cause: err.Error(), Err: err}
	}
	return c.compile(text, stmt)
}

// Compile compiles a parsed statement.
func (c *Compiler) Compile(stmt *queryir.Statement) (*CompiledQuery, error) {
	if stmt == nil {
		return nil, malformed(CodeInvalidStatement, "", "nil statement")
	}
	return c.compile(stmt.String(), stmt)
}

func (c *Compiler) compile(text string, stmt *queryir.Statement) (*CompiledQuery, error) {
	cq, err := c.build(stmt)
	if err != nil {
		var me *MalformedQueryError
		if errors.As(err, &me) && me.Query == "" {
			me.Query = text
		}
		c.log.Debugw("query rejected", "query", text, "error", err)
		return nil, err
	}
	cq.Query = text
	c.log.Debugw("query compiled", "query", text, "columns", len(cq.Columns))
	return cq, nil
}

func (c *Compiler) build(stmt *queryir.Statement) (*CompiledQuery, error) {
	if res := queryir.Validate(stmt); !res.OK() {
		return nil, malformed(CodeInvalidStatement, "", "%s", strings.Join(res.Problems, "; "))
	}

	cp := &compilation{
		c:       c,
		node:    c.schema.Node(),
		aliases: make(map[string]*ResultColumn),
		byName:  make(map[string]*ResultColumn),
	}
	if err := cp.bindColumns(stmt.From); err != nil {
		return nil, err
	}

	var where node
	if stmt.Where != nil {
		var err error
		if where, err = cp.expr(stmt.Where); err != nil {
			return nil, err
		}
	}

	order := make([]orderTerm, 0, len(stmt.OrderBy))
	for _, o := range stmt.OrderBy {
		ref, err := cp.orderOperand(o.Attribute)
		if err != nil {
			return nil, err
		}
		order = append(order, orderTerm{ref: ref, desc: o.Descending})
	}

	for _, name := range stmt.Select {
		if _, err := cp.lookup(name, true); err != nil {
			return nil, err
		}
	}

	if err := cp.join(); err != nil {
		return nil, err
	}
	sql, err := cp.emit(where, order)
	if err != nil {
		return nil, err
	}
	return &CompiledQuery{
		SQL:     sql,
		Columns: cp.columns,
		Select:  append([]string(nil), stmt.Select...),
	}, nil
}

// compilation is the state of one Compile call.
type compilation struct {
	c       *Compiler
	node    *schema.ResourceClass
	columns []*ResultColumn
	aliases map[string]*ResultColumn // explicit AS names
	byName  map[string]*ResultColumn // aliases plus class names of unaliased columns

	from   []string
	glue   []string
	values map[*ResultColumn]map[*schema.AttributeDefinition]string
}

func (cp *compilation) bindColumns(from []queryir.FromItem) error {
	if len(from) == 0 {
		cp.columns = []*ResultColumn{newColumn(nil, "", 1)}
		return nil
	}
	unaliased := make(map[string]int)
	for i, f := range from {
		class, err := cp.c.schema.ResourceClass(f.Class)
		if err != nil {
			if errors.IsEntityDoesNotExist(err) {
				return malformed(CodeUnknownClass, f.Class, "unknown resource class %s", f.Class)
			}
			return err
		}
		col := newColumn(class, f.Alias, i+1)
		cp.columns = append(cp.columns, col)
		if f.Alias != "" {
			cp.aliases[f.Alias] = col
			cp.byName[f.Alias] = col
		} else {
			unaliased[f.Class]++
		}
	}
	// an unaliased class name is a usable prefix when it is unique
	for _, col := range cp.columns {
		name := col.Class.Name()
		if col.Alias == "" && unaliased[name] == 1 {
			if _, taken := cp.byName[name]; !taken {
				cp.byName[name] = col
			}
		}
	}
	return nil
}

// operandKind tells what an operand resolved to.
type operandKind int

const (
	opLiteral operandKind = iota
	opAttribute
	opClass
)

// operand is a resolved predicate side.
type operand struct {
	kind  operandKind
	text  string
	col   *ResultColumn
	attr  *schema.AttributeDefinition
	value ir.Value // literal converted by the left attribute's handler
}

// resolve applies the operand rules. Left-hand operands must resolve to an
// attribute; right-hand ones that resolve to nothing are literals.
func (cp *compilation) resolve(o queryir.Operand, lhs bool) (operand, error) {
	if o.Quoted {
		return operand{kind: opLiteral, text: o.Text}, nil
	}
	text := o.Text

	if col, ok := cp.aliases[text]; ok {
		if lhs {
			return operand{}, malformed(CodeClassReference, text,
				"resource class alias %s is not allowed on the left-hand side", text)
		}
		return operand{kind: opClass, text: text, col: col}, nil
	}

	ref, err := cp.lookup(text, lhs)
	if err != nil {
		return operand{}, err
	}
	if ref.attr == nil {
		return operand{kind: opLiteral, text: text}, nil
	}
	ref.col.add(ref.attr)
	return ref, nil
}

// lookup resolves text as [alias.]attribute without registering the
// attribute. Unless strict, a failed lookup yields an operand with no
// attribute instead of an error.
func (cp *compilation) lookup(text string, strict bool) (operand, error) {
	var col *ResultColumn
	name := text
	if i := strings.Index(text, "."); i >= 0 {
		prefix := text[:i]
		name = text[i+1:]
		col = cp.byName[prefix]
		if col == nil {
			if strict {
				return operand{}, malformed(CodeUnknownAttribute, text, "unknown alias %s", prefix)
			}
			return operand{text: text}, nil
		}
	} else {
		if len(cp.columns) != 1 || cp.columns[0].Alias != "" {
			if !strict {
				return operand{text: text}, nil
			}
			if len(cp.columns) == 1 {
				return operand{}, malformed(CodeAmbiguous, text,
					"attribute %s must be qualified with alias %s", text, cp.columns[0].Alias)
			}
			return operand{}, malformed(CodeAmbiguous, text,
				"attribute %s is ambiguous in a query with %d columns", text, len(cp.columns))
		}
		col = cp.columns[0]
	}

	attr, err := cp.attribute(col, name)
	if err != nil {
		return operand{}, err
	}
	if attr == nil {
		if strict {
			return operand{}, malformed(CodeUnknownAttribute, text, "%s has no attribute %s", describe(col), name)
		}
		return operand{text: text}, nil
	}
	return operand{kind: opAttribute, text: text, col: col, attr: attr}, nil
}

func (cp *compilation) attribute(col *ResultColumn, name string) (*schema.AttributeDefinition, error) {
	return LookupAttribute(cp.node, col.Class, name)
}

// LookupAttribute finds name in class, falling back to the builtin
// attributes of node. A nil class has only the builtins. It returns nil
// when neither has the attribute.
func LookupAttribute(node, class *schema.ResourceClass, name string) (*schema.AttributeDefinition, error) {
	if class != nil {
		a, err := class.Attribute(name)
		if err == nil {
			return a, nil
		}
		if !schema.IsUnknownAttribute(err) {
			return nil, err
		}
	}
	a, err := node.Attribute(name)
	if err != nil || !a.Has(ir.AttrBuiltin) {
		return nil, nil
	}
	return a, nil
}

func describe(col *ResultColumn) string {
	if col.Class == nil {
		return "resource"
	}
	if col.Alias != "" {
		return col.Alias + " (" + col.Class.Name() + ")"
	}
	return col.Class.Name()
}

// checkSynthetic rejects SYNTHETIC attributes in filter and order clauses.
func checkSynthetic(o operand) error {
	if o.attr != nil && o.attr.Has(ir.AttrSynthetic) {
		return malformed(CodeSynthetic, o.text, "synthetic attribute %s cannot be used in a query", o.attr.Name())
	}
	return nil
}

func (cp *compilation) orderOperand(text string) (operand, error) {
	ref, err := cp.resolve(queryir.Ref(text), true)
	if err != nil {
		return operand{}, err
	}
	if err := checkSynthetic(ref); err != nil {
		return operand{}, err
	}
	return ref, nil
}

// predicate resolves and checks both sides of a comparison predicate.
func (cp *compilation) predicate(left string, right queryir.Operand, cmp attrtype.ComparisonClass, classRef bool) (operand, operand, error) {
	lhs, err := cp.resolve(queryir.Ref(left), true)
	if err != nil {
		return operand{}, operand{}, err
	}
	if err := checkSynthetic(lhs); err != nil {
		return operand{}, operand{}, err
	}
	h := lhs.attr.Handler()
	if !h.Comparisons().Has(cmp) {
		return operand{}, operand{}, malformed(CodeUnsupportedComparison, left,
			"attribute %s of type %s does not support %s", lhs.attr.Name(), lhs.attr.Type().Name, cmp)
	}

	rhs, err := cp.resolve(right, false)
	if err != nil {
		return operand{}, operand{}, err
	}

	switch rhs.kind {
	case opAttribute:
		if err := checkSynthetic(rhs); err != nil {
			return operand{}, operand{}, err
		}
		if !ir.Assignable(lhs.attr.Kind(), rhs.attr.Kind()) {
			return operand{}, operand{}, malformed(CodeTypeMismatch, right.Text,
				"type mismatch: %s is %s, %s is %s", left, lhs.attr.Kind(), right.Text, rhs.attr.Kind())
		}

	case opClass:
		if !classRef {
			return operand{}, operand{}, malformed(CodeClassReference, right.Text,
				"resource class alias %s can only be compared for equality", right.Text)
		}
		if lhs.attr.Kind() != ir.KindRef {
			return operand{}, operand{}, malformed(CodeClassReference, right.Text,
				"%s is not a resource reference and cannot be compared with %s", left, right.Text)
		}
		if domain := lhs.attr.Domain(); domain != "" {
			target, err := cp.c.schema.ResourceClass(domain)
			if err != nil {
				return operand{}, operand{}, malformed(CodeClassReference, left,
					"domain class %s of %s does not exist", domain, left)
			}
			if !rhs.col.Class.IsA(target) {
				return operand{}, operand{}, malformed(CodeClassReference, right.Text,
					"%s is a %s, not a %s", right.Text, rhs.col.Class.Name(), domain)
			}
		}

	case opLiteral:
		v, err := h.Convert(rhs.text)
		if err != nil {
			return operand{}, operand{}, &MalformedQueryError{
				Code: CodeIllegalLiteral, Operand: rhs.text, Err: err,
				Cause: "illegal literal for " + left + ": " + err.Error(),
			}
		}
		if domain := lhs.attr.Domain(); domain != "" && cmp != attrtype.Approximation {
			if err := h.CheckDomain(domain, v); err != nil {
				return operand{}, operand{}, &MalformedQueryError{
					Code: CodeDomainViolation, Operand: rhs.text, Err: err,
					Cause: "literal violates domain of " + left + ": " + err.Error(),
				}
			}
		}
		rhs.value = v
	}
	return lhs, rhs, nil
}

// node is the resolved form of a WHERE expression.
type node interface{}

type andNode struct{ terms []node }
type orNode struct{ terms []node }
type notNode struct{ x node }

type predNode struct {
	op       string // SQL operator
	lhs, rhs operand
	fold     bool // case-insensitive approximation
}

type definedNode struct{ ref operand }

func (cp *compilation) exprs(terms []queryir.Expr) ([]node, error) {
	out := make([]node, len(terms))
	for i, t := range terms {
		n, err := cp.expr(t)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (cp *compilation) expr(e queryir.Expr) (node, error) {
	switch x := e.(type) {
	case *queryir.And:
		terms, err := cp.exprs(x.Terms)
		if err != nil {
			return nil, err
		}
		return &andNode{terms: terms}, nil

	case *queryir.Or:
		terms, err := cp.exprs(x.Terms)
		if err != nil {
			return nil, err
		}
		return &orNode{terms: terms}, nil

	case *queryir.Not:
		n, err := cp.expr(x.Expr)
		if err != nil {
			return nil, err
		}
		return &notNode{x: n}, nil

	case *queryir.Equality:
		lhs, rhs, err := cp.predicate(x.Left, x.Right, attrtype.Equality, true)
		if err != nil {
			return nil, err
		}
		op := "="
		if x.Op == queryir.Ne {
			op = "<>"
		}
		return &predNode{op: op, lhs: lhs, rhs: rhs}, nil

	case *queryir.Comparison:
		lhs, rhs, err := cp.predicate(x.Left, x.Right, attrtype.Ordering, false)
		if err != nil {
			return nil, err
		}
		return &predNode{op: x.Op.String(), lhs: lhs, rhs: rhs}, nil

	case *queryir.Approximation:
		lhs, rhs, err := cp.predicate(x.Left, x.Right, attrtype.Approximation, false)
		if err != nil {
			return nil, err
		}
		return &predNode{op: "LIKE", lhs: lhs, rhs: rhs, fold: x.CaseInsensitive}, nil

	case *queryir.Definedness:
		ref, err := cp.resolve(queryir.Ref(x.Attribute), true)
		if err != nil {
			return nil, err
		}
		if err := checkSynthetic(ref); err != nil {
			return nil, err
		}
		return &definedNode{ref: ref}, nil
	}
	return nil, malformed(CodeInvalidStatement, "", "unsupported expression %T", e)
}

// join asks the strategies for the FROM terms of every column.
func (cp *compilation) join() error {
	cp.values = make(map[*ResultColumn]map[*schema.AttributeDefinition]string, len(cp.columns))
	for _, col := range cp.columns {
		from := "coral_resource " + col.sqlAlias()
		values := make(map[*schema.AttributeDefinition]string)

		// group stored attributes by declaring class, in order of first reference
		var order []ir.ClassID
		groups := make(map[ir.ClassID][]*schema.AttributeDefinition)
		for _, a := range col.attrs {
			if a.Has(ir.AttrBuiltin) {
				column, _ := schema.BuiltinColumn(a.Name())
				values[a] = col.sqlAlias() + "." + column
				continue
			}
			id := a.DeclaringClassID()
			if _, seen := groups[id]; !seen {
				order = append(order, id)
			}
			groups[id] = append(groups[id], a)
		}

		for _, id := range order {
			declaring, err := cp.c.schema.ResourceClassByID(id)
			if err != nil {
				return err
			}
			strategy, ok := cp.c.strategies[declaring.Handler()]
			if !ok {
				return malformed(CodeStorage, declaring.Name(), "no join strategy for storage %q of class %s",
					declaring.Handler(), declaring.Name())
			}
			j, err := strategy.Join(col, declaring, groups[id])
			if err != nil {
				return &MalformedQueryError{Code: CodeStorage, Operand: declaring.Name(), Cause: err.Error(), Err: err}
			}
			from += j.From
			cp.glue = append(cp.glue, j.Glue...)
			for a, v := range j.Values {
				values[a] = v
			}
		}
		cp.from = append(cp.from, from)
		cp.values[col] = values
	}
	return nil
}

// membership restricts a bound column to its class, and to the class's
// descendants when subclass matching is on.
func (cp *compilation) membership(col *ResultColumn) string {
	ids := []ir.ClassID{col.Class.ID()}
	if cp.c.subclasses {
		for _, ch := range col.Class.ChildClasses() {
			ids = append(ids, ch.ID())
		}
	}
	target := col.sqlAlias() + ".resource_class_id"
	if len(ids) == 1 {
		return target + " = " + ids[0].String()
	}
	rest := ids[1:]
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return target + " IN (" + strings.Join(parts, ", ") + ")"
}
