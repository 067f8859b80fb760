// planner.go translates the logical tree into parameterized SQL over the
// base tables and the FTS projection. It is the tree's sole consumer.
//
// Field clauses become WHERE conditions on files or EXISTS subqueries on
// the relation tables; free-text terms become MATCH subqueries on
// files_fts. Negated field clauses use NOT EXISTS; negated free text is
// never pushed into a MATCH expression; it is lifted to a NOT IN on the
// outer query, which FTS cannot misinterpret.

package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tagbox/core/internal/tberr"
)

// Plan is a built query: the WHERE fragment over alias f (files), its
// parameters in placeholder order, and the combined positive match
// string used for rank ordering when any free text is present.
type Plan struct {
	Where     string
	Params    []any
	RankMatch string
}

// Build translates a tree (nil means match-all) into a Plan.
func Build(query string, root Node) (*Plan, error) {
	b := &builder{query: query}
	where := "1 = 1"
	if root != nil {
		var err error
		where, err = b.condition(root, false)
		if err != nil {
			return nil, err
		}
	}
	return &Plan{
		Where:     where,
		Params:    b.params,
		RankMatch: strings.Join(b.positiveTerms, " AND "),
	}, nil
}

type builder struct {
	query         string
	params        []any
	positiveTerms []string
}

// condition renders one node. negated tracks whether an enclosing
// NotNode flipped polarity, which decides EXISTS vs NOT EXISTS and
// IN vs NOT IN at the leaves.
func (b *builder) condition(n Node, negated bool) (string, error) {
	switch node := n.(type) {
	case *AndNode:
		return b.group(node.Children, " AND ", negated)
	case *OrNode:
		return b.group(node.Children, " OR ", negated)
	case *NotNode:
		return b.condition(node.Child, !negated)
	case *FieldNode:
		return b.field(node, negated)
	case *TextNode:
		return b.text(node, negated), nil
	default:
		return "", fmt.Errorf("%w: unknown query node %T", tberr.ErrDatabaseError, n)
	}
}

// group renders child conditions joined by op. Negation distributes by
// De Morgan: the children are negated and the combinator flips.
func (b *builder) group(children []Node, op string, negated bool) (string, error) {
	if negated {
		if op == " AND " {
			op = " OR "
		} else {
			op = " AND "
		}
	}
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s, err := b.condition(c, negated)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

// text renders a free-text term as a MATCH subquery. Positive terms also
// feed the combined rank match string.
func (b *builder) text(node *TextNode, negated bool) string {
	match := ftsQuote(node.Term)
	if !negated {
		b.positiveTerms = append(b.positiveTerms, match)
	}
	op := "IN"
	if negated {
		op = "NOT IN"
	}
	b.params = append(b.params, match)
	return fmt.Sprintf("f.rowid %s (SELECT rowid FROM files_fts WHERE files_fts MATCH ?)", op)
}

// ftsQuote wraps a term or phrase in FTS5 string syntax, doubling any
// embedded quotes so user input cannot alter the match expression.
func ftsQuote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

func (b *builder) field(node *FieldNode, negated bool) (string, error) {
	switch node.Key {
	case "tag":
		return b.exists(negated, tagExists(node.Value, b)), nil
	case "author":
		b.params = append(b.params, node.Value)
		return b.exists(negated, `SELECT 1 FROM file_authors fa
			JOIN authors a ON a.id = fa.author_id
			WHERE fa.file_id = f.id AND a.name = ? COLLATE NOCASE`), nil
	case "title":
		return b.maybeNot(negated, "instr(lower(f.title), lower(?)) > 0", node.Value), nil
	case "publisher":
		return b.maybeNot(negated, "instr(lower(f.publisher), lower(?)) > 0", node.Value), nil
	case "year":
		return b.year(node, negated)
	case "category":
		return b.category(node, negated)
	case "ext":
		ext := strings.TrimPrefix(node.Value, ".")
		return b.maybeNot(negated, "f.filename LIKE '%.' || ?", ext), nil
	case "hash":
		b.params = append(b.params, node.Value, node.Value)
		cond := "(f.initial_hash = ? OR f.current_hash = ?)"
		if negated {
			cond = "NOT " + cond
		}
		return cond, nil
	case "id":
		return b.maybeNot(negated, "f.id = ?", node.Value), nil
	default:
		return "", &tberr.InvalidQueryError{Query: b.query, Position: node.Pos,
			Reason: "unknown field " + node.Key}
	}
}

// category matches the three denormalized category columns. A bare
// value ("category:tech") matches any of the three columns exactly; a
// multi-segment value ("category:tech/rust") pins the columns in order,
// with the remaining columns empty; a trailing "/*" turns either form
// into a hierarchical prefix, leaving deeper columns unconstrained.
func (b *builder) category(node *FieldNode, negated bool) (string, error) {
	value := node.Value
	prefix := strings.HasSuffix(value, "/*")
	if prefix {
		value = strings.TrimSuffix(value, "/*")
	}

	var segs []string
	for _, s := range strings.Split(value, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 || len(segs) > 3 {
		return "", &tberr.InvalidQueryError{Query: b.query, Position: node.Pos,
			Reason: "category expects one to three '/'-separated segments"}
	}

	var cond string
	if len(segs) == 1 && !prefix {
		b.params = append(b.params, segs[0], segs[0], segs[0])
		cond = "(f.category1 = ? OR f.category2 = ? OR f.category3 = ?)"
	} else {
		cols := []string{"f.category1", "f.category2", "f.category3"}
		var parts []string
		for i, s := range segs {
			b.params = append(b.params, s)
			parts = append(parts, cols[i]+" = ?")
		}
		if !prefix {
			for _, col := range cols[len(segs):] {
				parts = append(parts, col+" = ''")
			}
		}
		cond = "(" + strings.Join(parts, " AND ") + ")"
	}
	if negated {
		return "NOT " + cond, nil
	}
	return cond, nil
}

// maybeNot appends one parameter and wraps the condition in NOT when the
// clause is negated.
func (b *builder) maybeNot(negated bool, cond string, param any) string {
	b.params = append(b.params, param)
	if negated {
		return "NOT (" + cond + ")"
	}
	return cond
}

// exists wraps a correlated subquery in EXISTS or NOT EXISTS.
func (b *builder) exists(negated bool, subquery string) string {
	if negated {
		return "NOT EXISTS (" + subquery + ")"
	}
	return "EXISTS (" + subquery + ")"
}

// tagExists matches a tag by exact path or hierarchical prefix:
// "tag:tech" matches the tech subtree, "tag:tech/rust" matches that
// subtree, and an explicit "tag:tech/*" is prefix-only.
func tagExists(value string, b *builder) string {
	base := `SELECT 1 FROM file_tags ft
			JOIN tags t ON t.id = ft.tag_id
			WHERE ft.file_id = f.id AND t.is_deleted = 0 AND `
	if strings.HasSuffix(value, "/*") {
		prefix := strings.TrimSuffix(value, "/*")
		b.params = append(b.params, prefix+"/%")
		return base + `t.path LIKE ?`
	}
	b.params = append(b.params, value, value+"/%")
	return base + `(t.path = ? OR t.path LIKE ?)`
}

// year handles the extended value shapes: plain "2024", ranges
// "2000..2010", and comparisons ">2020", ">=2020", "<1999", "<=1999".
func (b *builder) year(node *FieldNode, negated bool) (string, error) {
	v := node.Value
	var cond string
	switch {
	case strings.Contains(v, ".."):
		parts := strings.SplitN(v, "..", 2)
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return "", b.yearErr(node)
		}
		b.params = append(b.params, lo, hi)
		cond = "f.year BETWEEN ? AND ?"
	case strings.HasPrefix(v, ">="), strings.HasPrefix(v, "<="):
		y, err := strconv.Atoi(v[2:])
		if err != nil {
			return "", b.yearErr(node)
		}
		b.params = append(b.params, y)
		cond = "f.year " + v[:2] + " ?"
	case strings.HasPrefix(v, ">"), strings.HasPrefix(v, "<"):
		y, err := strconv.Atoi(v[1:])
		if err != nil {
			return "", b.yearErr(node)
		}
		b.params = append(b.params, y)
		cond = "f.year " + v[:1] + " ?"
	default:
		y, err := strconv.Atoi(v)
		if err != nil {
			return "", b.yearErr(node)
		}
		b.params = append(b.params, y)
		cond = "f.year = ?"
	}
	if negated {
		return "NOT (" + cond + ")", nil
	}
	return cond, nil
}

func (b *builder) yearErr(node *FieldNode) error {
	return &tberr.InvalidQueryError{Query: b.query, Position: node.Pos,
		Reason: "year expects a number, a range like 2000..2010, or a comparison like >=2020"}
}
