package attrtype

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/ir"
)

// Handler references of the built-in value handlers.
const (
	HandlerString   = "string"
	HandlerText     = "text"
	HandlerInteger  = "integer"
	HandlerBoolean  = "boolean"
	HandlerDate     = "date"
	HandlerResource = "resource"
)

// valueColumn is shared by every built-in value table.
const valueColumn = "data"

// quoteSQL renders s as a single-quoted SQL string literal.
func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func illegal(format string, args ...any) error {
	return errors.Wrapf(errors.ErrIllegalArgument, format, args...)
}

func violation(format string, args ...any) error {
	return errors.Wrapf(errors.ErrConstraintViolation, format, args...)
}

// stringHandler handles string and text values. Domains are RE2 patterns
// that must match the whole value.
type stringHandler struct {
	comparisons ComparisonClass
	patterns    sync.Map // domain -> *regexp.Regexp
}

func newStringHandler(cmp ComparisonClass) *stringHandler {
	return &stringHandler{comparisons: cmp}
}

func (h *stringHandler) Kind() ir.Kind                { return ir.KindString }
func (h *stringHandler) Comparisons() ComparisonClass { return h.comparisons }
func (h *stringHandler) ValueColumn() string          { return valueColumn }
func (h *stringHandler) SQLType() string              { return "TEXT" }

func (h *stringHandler) Convert(literal string) (ir.Value, error) {
	return ir.String(literal), nil
}

func (h *stringHandler) Format(v ir.Value) string {
	s, _ := v.(ir.String)
	return string(s)
}

func (h *stringHandler) SQLLiteral(v ir.Value) (string, error) {
	s, ok := v.(ir.String)
	if !ok {
		return "", illegal("%T is not a string value", v)
	}
	return quoteSQL(string(s)), nil
}

func (h *stringHandler) pattern(domain string) (*regexp.Regexp, error) {
	if re, ok := h.patterns.Load(domain); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + domain + ")$")
	if err != nil {
		return nil, illegal("invalid string domain %q: %v", domain, err)
	}
	h.patterns.Store(domain, re)
	return re, nil
}

func (h *stringHandler) ParseDomain(domain string) error {
	if domain == "" {
		return nil
	}
	_, err := h.pattern(domain)
	return err
}

func (h *stringHandler) CheckDomain(domain string, v ir.Value) error {
	if domain == "" || ir.IsNull(v) {
		return nil
	}
	re, err := h.pattern(domain)
	if err != nil {
		return err
	}
	s, ok := v.(ir.String)
	if !ok {
		return illegal("%T is not a string value", v)
	}
	if !re.MatchString(string(s)) {
		return violation("%q does not match %q", string(s), domain)
	}
	return nil
}

// bounds is an inclusive range with optional ends, written "min..max",
// "min.." or "..max".
type bounds[T constraints.Integer] struct {
	min, max       T
	hasMin, hasMax bool
}

func parseBounds[T constraints.Integer](domain string, parse func(string) (T, error)) (bounds[T], error) {
	var b bounds[T]
	lo, hi, found := strings.Cut(domain, "..")
	if !found {
		return b, illegal("range domain %q must have the form min..max", domain)
	}
	var err error
	if lo = strings.TrimSpace(lo); lo != "" {
		if b.min, err = parse(lo); err != nil {
			return b, illegal("range domain %q: bad lower bound: %v", domain, err)
		}
		b.hasMin = true
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		if b.max, err = parse(hi); err != nil {
			return b, illegal("range domain %q: bad upper bound: %v", domain, err)
		}
		b.hasMax = true
	}
	if b.hasMin && b.hasMax && b.min > b.max {
		return b, illegal("range domain %q is empty", domain)
	}
	return b, nil
}

func (b bounds[T]) contains(v T) bool {
	return (!b.hasMin || v >= b.min) && (!b.hasMax || v <= b.max)
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

type integerHandler struct{}

func (integerHandler) Kind() ir.Kind                { return ir.KindInt }
func (integerHandler) Comparisons() ComparisonClass { return Equality | Ordering }
func (integerHandler) ValueColumn() string          { return valueColumn }
func (integerHandler) SQLType() string              { return "INTEGER" }

func (integerHandler) Convert(literal string) (ir.Value, error) {
	n, err := parseInt64(strings.TrimSpace(literal))
	if err != nil {
		return nil, illegal("%q is not an integer", literal)
	}
	return ir.Int(n), nil
}

func (integerHandler) Format(v ir.Value) string {
	n, _ := v.(ir.Int)
	return strconv.FormatInt(int64(n), 10)
}

func (integerHandler) SQLLiteral(v ir.Value) (string, error) {
	n, ok := v.(ir.Int)
	if !ok {
		return "", illegal("%T is not an integer value", v)
	}
	return strconv.FormatInt(int64(n), 10), nil
}

func (integerHandler) ParseDomain(domain string) error {
	if domain == "" {
		return nil
	}
	_, err := parseBounds(domain, parseInt64)
	return err
}

func (integerHandler) CheckDomain(domain string, v ir.Value) error {
	if domain == "" || ir.IsNull(v) {
		return nil
	}
	b, err := parseBounds(domain, parseInt64)
	if err != nil {
		return err
	}
	n, ok := v.(ir.Int)
	if !ok {
		return illegal("%T is not an integer value", v)
	}
	if !b.contains(int64(n)) {
		return violation("%d is outside %s", int64(n), domain)
	}
	return nil
}

type booleanHandler struct{}

func (booleanHandler) Kind() ir.Kind                { return ir.KindBool }
func (booleanHandler) Comparisons() ComparisonClass { return Equality }
func (booleanHandler) ValueColumn() string          { return valueColumn }
func (booleanHandler) SQLType() string              { return "INTEGER" }

func (booleanHandler) Convert(literal string) (ir.Value, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(literal))
	if err != nil {
		return nil, illegal("%q is not a boolean", literal)
	}
	return ir.Bool(b), nil
}

func (booleanHandler) Format(v ir.Value) string {
	b, _ := v.(ir.Bool)
	return strconv.FormatBool(bool(b))
}

func (booleanHandler) SQLLiteral(v ir.Value) (string, error) {
	b, ok := v.(ir.Bool)
	if !ok {
		return "", illegal("%T is not a boolean value", v)
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

func (booleanHandler) ParseDomain(domain string) error {
	if domain != "" {
		return illegal("boolean attributes do not take a domain")
	}
	return nil
}

func (booleanHandler) CheckDomain(string, ir.Value) error { return nil }

// dateHandler stores RFC 3339 UTC strings, which order lexically.
// Domains are ranges of unix seconds or RFC 3339 timestamps.
type dateHandler struct{}

func (dateHandler) Kind() ir.Kind                { return ir.KindTime }
func (dateHandler) Comparisons() ComparisonClass { return Equality | Ordering }
func (dateHandler) ValueColumn() string          { return valueColumn }
func (dateHandler) SQLType() string              { return "TEXT" }

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func parseUnix(s string) (int64, error) {
	if t, err := parseTime(s); err == nil {
		return t.Unix(), nil
	}
	return parseInt64(s)
}

func (dateHandler) Convert(literal string) (ir.Value, error) {
	t, err := parseTime(literal)
	if err != nil {
		return nil, illegal("%q is not a date", literal)
	}
	return ir.NewTime(t), nil
}

func (dateHandler) Format(v ir.Value) string {
	t, _ := v.(ir.Time)
	return t.Format(time.RFC3339)
}

func (dateHandler) SQLLiteral(v ir.Value) (string, error) {
	t, ok := v.(ir.Time)
	if !ok {
		return "", illegal("%T is not a date value", v)
	}
	return quoteSQL(t.Format(time.RFC3339)), nil
}

func (dateHandler) ParseDomain(domain string) error {
	if domain == "" {
		return nil
	}
	_, err := parseBounds(domain, parseUnix)
	return err
}

func (dateHandler) CheckDomain(domain string, v ir.Value) error {
	if domain == "" || ir.IsNull(v) {
		return nil
	}
	b, err := parseBounds(domain, parseUnix)
	if err != nil {
		return err
	}
	t, ok := v.(ir.Time)
	if !ok {
		return illegal("%T is not a date value", v)
	}
	if !b.contains(t.Unix()) {
		return violation("%s is outside %s", t.Format(time.RFC3339), domain)
	}
	return nil
}

// resourceHandler holds references to other resources. The domain is the
// name of the resource class the referenced resource must belong to.
type resourceHandler struct {
	registry *Registry
}

func (h *resourceHandler) Kind() ir.Kind                { return ir.KindRef }
func (h *resourceHandler) Comparisons() ComparisonClass { return Equality }
func (h *resourceHandler) ValueColumn() string          { return "ref" }
func (h *resourceHandler) SQLType() string              { return "INTEGER" }

func (h *resourceHandler) Convert(literal string) (ir.Value, error) {
	s := strings.TrimPrefix(strings.TrimSpace(literal), "#")
	n, err := parseInt64(s)
	if err != nil || n <= 0 {
		return nil, illegal("%q is not a resource identifier", literal)
	}
	return ir.Ref(n), nil
}

func (h *resourceHandler) Format(v ir.Value) string {
	r, _ := v.(ir.Ref)
	return strconv.FormatInt(int64(r), 10)
}

func (h *resourceHandler) SQLLiteral(v ir.Value) (string, error) {
	r, ok := v.(ir.Ref)
	if !ok {
		return "", illegal("%T is not a resource reference", v)
	}
	return strconv.FormatInt(int64(r), 10), nil
}

func (h *resourceHandler) ParseDomain(domain string) error {
	if strings.ContainsAny(domain, " \t\n'\"") {
		return illegal("resource domain %q is not a class name", domain)
	}
	return nil
}

func (h *resourceHandler) CheckDomain(domain string, v ir.Value) error {
	if domain == "" || ir.IsNull(v) {
		return nil
	}
	r, ok := v.(ir.Ref)
	if !ok {
		return illegal("%T is not a resource reference", v)
	}
	checker := h.registry.RefChecker()
	if checker == nil {
		return nil
	}
	ok, err := checker.IsInstanceOf(ir.ResourceID(r), domain)
	if err != nil {
		return err
	}
	if !ok {
		return violation("resource %d is not a %s", int64(r), domain)
	}
	return nil
}
