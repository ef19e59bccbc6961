// Package reports builds the financial statements from the general ledger by
// rolling balances up the chart of accounts.
package reports

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/harborline/ibs/internal/ledger"
)

var (
	// ErrDuplicateAccount indicates the chart lists an account number twice.
	ErrDuplicateAccount = errors.New("reports: duplicate account number")
	// ErrUnknownParent indicates an account points at a parent missing from the chart.
	ErrUnknownParent = errors.New("reports: unknown parent account")
	// ErrHierarchyTooDeep indicates more than ledger.MaxLevel levels.
	ErrHierarchyTooDeep = errors.New("reports: account hierarchy deeper than 5 levels")
	// ErrHierarchyCycle indicates accounts that never reach a root.
	ErrHierarchyCycle = errors.New("reports: account hierarchy contains a cycle")
)

// Node is one account in the rolled-up chart.
type Node struct {
	Title ledger.AccountTitle
	// Debit and Credit are the raw movements booked directly on the account.
	Debit  decimal.Decimal
	Credit decimal.Decimal
	// Own is the account's balance in its normal-balance sign, after substitution.
	Own decimal.Decimal
	// Total is Own plus the children's totals, expressed in this node's sign.
	Total       decimal.Decimal
	Substituted bool
	Children    []*Node
}

// IsLeaf reports whether the account has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Tree is the rolled-up chart of accounts.
type Tree struct {
	Roots   []*Node
	Summary *PeriodSummary
	// Unmapped holds movements on account numbers absent from the chart.
	Unmapped []*Node
	index    map[string]*Node
}

// Find returns the node for an account number.
func (t *Tree) Find(number string) (*Node, bool) {
	n, ok := t.index[number]
	return n, ok
}

// Walk visits nodes depth first. Returning false skips the node's children.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	for _, root := range t.Roots {
		visit(root, 1)
	}
}

// RoleTotal sums the own balance of every leaf carrying role.
func (t *Tree) RoleTotal(role ledger.AccountRole) decimal.Decimal {
	total := decimal.Zero
	t.Walk(func(n *Node, _ int) bool {
		if n.IsLeaf() && n.Title.EffectiveRole() == role {
			total = total.Add(n.Own)
		}
		return true
	})
	return total
}

// HasRole reports whether any leaf carries role.
func (t *Tree) HasRole(role ledger.AccountRole) bool {
	found := false
	t.Walk(func(n *Node, _ int) bool {
		if n.IsLeaf() && n.Title.EffectiveRole() == role {
			found = true
		}
		return !found
	})
	return found
}

// Rollup links the chart into a tree, applies the line movements to the leaves and
// accumulates totals bottom-up. When summary is set, the retained earnings,
// prior period adjustment and net income accounts take their balance from it
// instead of the lines.
func Rollup(titles []ledger.AccountTitle, lines []ledger.Line, summary *PeriodSummary) (*Tree, error) {
	tree := &Tree{Summary: summary, index: make(map[string]*Node, len(titles))}
	for _, title := range titles {
		if _, dup := tree.index[title.Number]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, title.Number)
		}
		tree.index[title.Number] = &Node{Title: title, Debit: decimal.Zero, Credit: decimal.Zero}
	}

	for _, title := range titles {
		node := tree.index[title.Number]
		if title.IsMain || title.ParentNumber == "" {
			tree.Roots = append(tree.Roots, node)
			continue
		}
		parent, ok := tree.index[title.ParentNumber]
		if !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, title.ParentNumber, title.Number)
		}
		parent.Children = append(parent.Children, node)
	}
	sortNodes(tree.Roots)
	for _, node := range tree.index {
		sortNodes(node.Children)
	}

	reached := 0
	var depthErr error
	tree.Walk(func(n *Node, depth int) bool {
		reached++
		if depth > ledger.MaxLevel && depthErr == nil {
			depthErr = fmt.Errorf("%w: %s", ErrHierarchyTooDeep, n.Title.Number)
		}
		return depthErr == nil
	})
	if depthErr != nil {
		return nil, depthErr
	}
	if reached != len(tree.index) {
		return nil, ErrHierarchyCycle
	}

	unmapped := make(map[string]*Node)
	for _, line := range lines {
		node, ok := tree.index[line.AccountNumber]
		if !ok {
			node, ok = unmapped[line.AccountNumber]
			if !ok {
				node = &Node{
					Title:  ledger.AccountTitle{Number: line.AccountNumber, Name: line.AccountTitle, NormalBalance: ledger.NormalDebit},
					Debit:  decimal.Zero,
					Credit: decimal.Zero,
				}
				unmapped[line.AccountNumber] = node
				tree.Unmapped = append(tree.Unmapped, node)
			}
		}
		node.Debit = node.Debit.Add(line.Debit)
		node.Credit = node.Credit.Add(line.Credit)
	}
	sortNodes(tree.Unmapped)
	for _, node := range tree.Unmapped {
		node.Own = node.Title.Balance(node.Debit, node.Credit)
		node.Total = node.Own
	}

	substituted := make(map[ledger.AccountRole]bool)
	for _, root := range tree.Roots {
		accumulate(root, summary, substituted)
	}
	return tree, nil
}

// accumulate fills Own and Total bottom-up. Only the first leaf of each
// substituted role receives the summary figure; later leaves with the same role
// are zeroed so the figure is counted once.
func accumulate(n *Node, summary *PeriodSummary, substituted map[ledger.AccountRole]bool) decimal.Decimal {
	n.Own = n.Title.Balance(n.Debit, n.Credit)
	if summary != nil && n.IsLeaf() {
		if value, ok := substitute(n.Title.EffectiveRole(), summary); ok {
			n.Substituted = true
			n.Own = decimal.Zero
			if !substituted[n.Title.EffectiveRole()] {
				n.Own = value
				substituted[n.Title.EffectiveRole()] = true
			}
		}
	}
	n.Total = n.Own
	for _, child := range n.Children {
		childTotal := accumulate(child, summary, substituted)
		if child.Title.NormalBalance == n.Title.NormalBalance {
			n.Total = n.Total.Add(childTotal)
		} else {
			n.Total = n.Total.Sub(childTotal)
		}
	}
	return n.Total
}

func substitute(role ledger.AccountRole, summary *PeriodSummary) (decimal.Decimal, bool) {
	switch role {
	case ledger.RoleRetainedEarnings:
		return summary.BeginningRetainedEarnings, true
	case ledger.RolePriorPeriodAdjustment:
		return summary.PriorPeriodAdjustment, true
	case ledger.RoleNetIncome:
		return summary.NetIncome, true
	}
	return decimal.Zero, false
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Title.Number < nodes[j].Title.Number })
}
