package chain

import "fmt"

type pointerChange struct {
	id         int64
	prev, next *int64
}

// plan computes the pointer assignments for one note's pages, already
// sorted by (page_order, id). It returns only the rows whose stored
// pointers differ from the computed chain, plus any anomalies found.
//
// Only-missing is the incremental repair mode: rows whose two pointers are
// both present and both land inside the note's page set are left alone.
// Rows with a null or dangling pointer are completed. Full mode realigns
// every row to the computed order.
func plan(pages []pageRow, onlyMissing bool) ([]pointerChange, []Anomaly) {
	var anomalies []Anomaly

	ids := make(map[int64]struct{}, len(pages))
	for _, p := range pages {
		ids[p.id] = struct{}{}
	}
	inSet := func(ptr *int64) bool {
		if ptr == nil {
			return false
		}
		_, ok := ids[*ptr]
		return ok
	}

	seen := make(map[int64]int64, len(pages))
	for _, p := range pages {
		if first, ok := seen[p.order]; ok {
			anomalies = append(anomalies, Anomaly{
				RowID: p.id,
				Kind:  AnomalyDuplicateOrder,
				Detail: fmt.Sprintf("page_order %d already held by row %d; chain order falls back to row id",
					p.order, first),
			})
		} else {
			seen[p.order] = p.id
		}
		for _, ptr := range []*int64{p.prev, p.next} {
			if ptr != nil && !inSet(ptr) {
				anomalies = append(anomalies, Anomaly{
					RowID:  p.id,
					Kind:   AnomalyOrphanPointer,
					Detail: fmt.Sprintf("pointer %d targets a row outside this note's pages", *ptr),
				})
			}
		}
	}

	computed := make([]pointerChange, len(pages))
	include := make([]bool, len(pages))
	for i, p := range pages {
		var prev, next *int64
		if i > 0 {
			prev = &pages[i-1].id
		}
		if i < len(pages)-1 {
			next = &pages[i+1].id
		}
		computed[i] = pointerChange{id: p.id, prev: prev, next: next}
		if ptrEq(p.prev, prev) && ptrEq(p.next, next) {
			continue
		}
		if onlyMissing && complete(p, inSet, i, len(pages)) {
			continue
		}
		include[i] = true
	}

	// A preserved row whose stale next equals a value the repair is about
	// to write would trip the unique next index, so it joins the repair
	// set. Repairing one row can expose another collision, hence the loop.
	if onlyMissing {
		for again := true; again; {
			again = false
			writing := make(map[int64]struct{})
			for i := range pages {
				if include[i] && computed[i].next != nil {
					writing[*computed[i].next] = struct{}{}
				}
			}
			for i, p := range pages {
				if include[i] || p.next == nil || ptrEq(p.next, computed[i].next) {
					continue
				}
				if _, clash := writing[*p.next]; clash {
					include[i] = true
					again = true
				}
			}
		}
	}

	var changes []pointerChange
	for i := range pages {
		if include[i] {
			changes = append(changes, computed[i])
		}
	}
	return changes, anomalies
}

// complete reports whether a row's stored pointers are already filled in a
// shape only-missing mode must preserve. Endpoint rows legitimately carry
// one null pointer, so the boundary sides are exempt from the non-null
// requirement.
func complete(p pageRow, inSet func(*int64) bool, i, n int) bool {
	prevOK := inSet(p.prev) || (i == 0 && p.prev == nil)
	nextOK := inSet(p.next) || (i == n-1 && p.next == nil)
	return prevOK && nextOK
}

func ptrEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
