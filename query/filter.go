package query

import (
	"strings"

	"github.com/kvdoc/isardb/collection"
	"github.com/kvdoc/isardb/internal/object"
	"github.com/kvdoc/isardb/isarerr"
	"github.com/kvdoc/isardb/link"
)

// Filter is one node of the residual filter tree, evaluated against a
// candidate object's id and bytes after its where-clause has already
// selected it. Evaluation is total: every node returns a definite
// true/false, never an "inapplicable" state.
type Filter interface {
	Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error)
}

// Static always returns Value, used as a filter-tree leaf for an
// unconditionally true/false branch (e.g. an empty Or).
type Static struct{ Value bool }

func (f Static) Eval(*collection.Collection, int64, []byte, *Context) (bool, error) {
	return f.Value, nil
}

// And is true iff every child filter is true. An empty And is vacuously true.
type And struct{ Filters []Filter }

func (f And) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	for _, child := range f.Filters {
		ok, err := child.Eval(c, id, buf, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Or is true iff any child filter is true. An empty Or is vacuously false.
type Or struct{ Filters []Filter }

func (f Or) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	for _, child := range f.Filters {
		ok, err := child.Eval(c, id, buf, ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not inverts its child.
type Not struct{ Filter Filter }

func (f Not) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	ok, err := f.Filter.Eval(c, id, buf, ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// IsNull is true iff the named property's stored value is the type's null
// sentinel (or its dynamic descriptor is the null offset).
type IsNull struct{ Property string }

func (f IsNull) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	p, ok := c.Schema.Property(f.Property)
	if !ok {
		return false, unknownProperty(f.Property)
	}
	_, isNull, err := propertyIsNull(buf, p)
	return isNull, err
}

func propertyIsNull(buf []byte, p object.Property) (any, bool, error) {
	switch p.Type {
	case object.Byte:
		return object.GetByte(buf, p), false, nil
	case object.Int:
		v, n := object.GetInt(buf, p)
		return v, n, nil
	case object.Long:
		v, n := object.GetLong(buf, p)
		return v, n, nil
	case object.Float:
		v, n := object.GetFloat(buf, p)
		return v, n, nil
	case object.Double:
		v, n := object.GetDouble(buf, p)
		return v, n, nil
	case object.String:
		v, n := object.GetString(buf, p)
		return v, n, nil
	case object.ByteList:
		v, n := object.GetByteList(buf, p)
		return v, n, nil
	case object.IntList:
		v, n := object.GetIntList(buf, p)
		return v, n, nil
	case object.LongList:
		v, n := object.GetLongList(buf, p)
		return v, n, nil
	case object.FloatList:
		v, n := object.GetFloatList(buf, p)
		return v, n, nil
	case object.DoubleList:
		v, n := object.GetDoubleList(buf, p)
		return v, n, nil
	case object.StringList:
		v, n := object.GetStringList(buf, p)
		return v, n, nil
	default:
		return nil, false, isarerr.New(isarerr.IllegalArgument, "query: unsupported property type %s", p.Type)
	}
}

func unknownProperty(name string) error {
	return isarerr.New(isarerr.IllegalArgument, "query: unknown property %q", name)
}

// Between matches Byte/Int/Long/Float/Double properties in [Lower, Upper].
// Integer-like types use LowerI/UpperI; Float/Double use LowerF/UpperF with
// the spec's NaN handling: if Upper is NaN, match iff the value is NaN and
// Lower is also NaN; else if Lower is NaN, match iff value <= Upper or the
// value is NaN; otherwise an ordinary inclusive range.
type Between struct {
	Property       string
	LowerI, UpperI int64
	LowerF, UpperF float64
}

func (f Between) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	p, ok := c.Schema.Property(f.Property)
	if !ok {
		return false, unknownProperty(f.Property)
	}
	switch p.Type {
	case object.Byte:
		v := int64(object.GetByte(buf, p))
		return v >= f.LowerI && v <= f.UpperI, nil
	case object.Int:
		v, isNull := object.GetInt(buf, p)
		if isNull {
			return false, nil
		}
		return int64(v) >= f.LowerI && int64(v) <= f.UpperI, nil
	case object.Long:
		v, isNull := object.GetLong(buf, p)
		if isNull {
			return false, nil
		}
		return v >= f.LowerI && v <= f.UpperI, nil
	case object.Float:
		v, isNull := object.GetFloat(buf, p)
		return evalFloatBetween(float64(v), isNull, f.LowerF, f.UpperF), nil
	case object.Double:
		v, isNull := object.GetDouble(buf, p)
		return evalFloatBetween(v, isNull, f.LowerF, f.UpperF), nil
	default:
		return false, isarerr.New(isarerr.IllegalArgument, "query: Between does not support property type %s", p.Type)
	}
}

func evalFloatBetween(v float64, isNull bool, lower, upper float64) bool {
	isNaN := func(x float64) bool { return x != x }
	value := v
	if isNull {
		value = nan()
	}
	switch {
	case isNaN(upper):
		return isNaN(value) && isNaN(lower)
	case isNaN(lower):
		return isNaN(value) || value <= upper
	default:
		return !isNaN(value) && value >= lower && value <= upper
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// ListContains is true iff the named list property contains Value (by the
// appropriate type comparison); a null list never matches.
type ListContains struct {
	Property      string
	IntValue      int64
	FloatValue    float64
	StringValue   string
	CaseSensitive bool
}

func (f ListContains) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	p, ok := c.Schema.Property(f.Property)
	if !ok {
		return false, unknownProperty(f.Property)
	}
	switch p.Type {
	case object.ByteList:
		vs, isNull := object.GetByteList(buf, p)
		if isNull {
			return false, nil
		}
		for _, v := range vs {
			if int64(v) == f.IntValue {
				return true, nil
			}
		}
	case object.IntList:
		vs, isNull := object.GetIntList(buf, p)
		if isNull {
			return false, nil
		}
		for _, v := range vs {
			if int64(v) == f.IntValue {
				return true, nil
			}
		}
	case object.LongList:
		vs, isNull := object.GetLongList(buf, p)
		if isNull {
			return false, nil
		}
		for _, v := range vs {
			if v == f.IntValue {
				return true, nil
			}
		}
	case object.FloatList:
		vs, isNull := object.GetFloatList(buf, p)
		if isNull {
			return false, nil
		}
		for _, v := range vs {
			if float64(v) == f.FloatValue {
				return true, nil
			}
		}
	case object.DoubleList:
		vs, isNull := object.GetDoubleList(buf, p)
		if isNull {
			return false, nil
		}
		for _, v := range vs {
			if v == f.FloatValue {
				return true, nil
			}
		}
	case object.StringList:
		vs, isNull := object.GetStringList(buf, p)
		if isNull {
			return false, nil
		}
		target := f.StringValue
		if !f.CaseSensitive {
			target = strings.ToLower(target)
		}
		for _, v := range vs {
			if v.IsNull {
				continue
			}
			cand := v.Value
			if !f.CaseSensitive {
				cand = strings.ToLower(cand)
			}
			if cand == target {
				return true, nil
			}
		}
	default:
		return false, isarerr.New(isarerr.IllegalArgument, "query: ListContains does not support property type %s", p.Type)
	}
	return false, nil
}

// StringOp selects String filter's comparison.
type StringOp int

const (
	StringEqual StringOp = iota
	StringStartsWith
	StringEndsWith
	StringLike
)

// StringFilter matches the named String property against Pattern.
// PatternIsNull requests the "pattern is null" case: matches iff the
// stored string is also null.
type StringFilter struct {
	Property      string
	Op            StringOp
	Pattern       string
	CaseSensitive bool
	PatternIsNull bool
}

func (f StringFilter) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	p, ok := c.Schema.Property(f.Property)
	if !ok {
		return false, unknownProperty(f.Property)
	}
	if p.Type != object.String {
		return false, isarerr.New(isarerr.IllegalArgument, "query: String filter does not support property type %s", p.Type)
	}
	v, isNull := object.GetString(buf, p)
	if f.PatternIsNull {
		return isNull, nil
	}
	if isNull {
		return false, nil
	}

	cand, pat := v, f.Pattern
	if !f.CaseSensitive {
		cand = strings.ToLower(cand)
		pat = strings.ToLower(pat)
	}
	switch f.Op {
	case StringEqual:
		return cand == pat, nil
	case StringStartsWith:
		return strings.HasPrefix(cand, pat), nil
	case StringEndsWith:
		return strings.HasSuffix(cand, pat), nil
	case StringLike:
		return likeMatch(cand, pat), nil
	default:
		return false, isarerr.New(isarerr.IllegalArgument, "query: unknown string filter op")
	}
}

// likeMatch implements a portable '*'/'?' wildcard matcher: '*' matches any
// run of characters (including none), '?' matches exactly one character.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	// Standard DP wildcard matching, O(len(s) * len(p)).
	sl, pl := len(s), len(p)
	dp := make([][]bool, sl+1)
	for i := range dp {
		dp[i] = make([]bool, pl+1)
	}
	dp[0][0] = true
	for j := 1; j <= pl; j++ {
		if p[j-1] == '*' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= sl; i++ {
		for j := 1; j <= pl; j++ {
			switch p[j-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && s[i-1] == p[j-1]
			}
		}
	}
	return dp[sl][pl]
}

// Link is true iff any object reached by the named link (or, if IsBacklink,
// the named link's inverse) from the candidate record satisfies Child. A
// Link filter with a nil Child is true iff the link has at least one edge
// (an existence check). Evaluation recurses through the target collection's
// own query engine rather than a bespoke join, mirroring how a single-object
// Link lookup and a full query share one filter evaluator.
type Link struct {
	LinkName   string
	IsBacklink bool
	Child      Filter
}

func (f Link) Eval(c *collection.Collection, id int64, buf []byte, ctx *Context) (bool, error) {
	if ctx == nil || ctx.Resolver == nil {
		return false, isarerr.New(isarerr.IllegalArgument, "query: Link filter requires a Resolver")
	}

	var l *link.Link
	var targetCollectionName string
	if f.IsBacklink {
		for _, candidate := range c.IncomingLinks {
			if candidate.Def.BacklinkName == f.LinkName {
				l = candidate
				targetCollectionName = candidate.Def.SourceCollection
				break
			}
		}
	} else {
		for _, candidate := range c.OutgoingLinks {
			if candidate.Def.Name == f.LinkName {
				l = candidate
				targetCollectionName = candidate.Def.TargetCollection
				break
			}
		}
	}
	if l == nil {
		return false, isarerr.New(isarerr.IllegalArgument, "query: unknown link %q", f.LinkName)
	}

	targetColl, err := ctx.Resolver.Collection(targetCollectionName)
	if err != nil {
		return false, err
	}

	match := false
	visit := func(t link.Target) (bool, error) {
		if f.Child == nil {
			match = true
			return false, nil
		}
		tbuf, ok, gerr := targetColl.Get(ctx.RTx, t.ID)
		if gerr != nil {
			return false, gerr
		}
		if !ok {
			return false, isarerr.New(isarerr.DbCorrupted, "query: link %q target %d not found in %q", f.LinkName, t.ID, targetCollectionName)
		}
		ok, everr := f.Child.Eval(targetColl, t.ID, tbuf, ctx)
		if everr != nil {
			return false, everr
		}
		if ok {
			match = true
			return false, nil
		}
		return true, nil
	}

	if f.IsBacklink {
		err = l.IterBacklinks(ctx.RTx, id, visit)
	} else {
		err = l.Iter(ctx.RTx, id, visit)
	}
	return match, err
}
