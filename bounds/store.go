package bounds

// MergeBounds installs b at priority p for k. An equal bound already at
// that tier is a no-op; a different bound at that tier is overwritten. The
// return value reports whether the store changed, which callers use to
// detect the fixed point.
//
// Once k is classified impossible, FlowInferred and Heuristics bounds are
// refused; the classification is terminal.
func (bi *Info) MergeBounds(k BoundsKey, p Priority, b Bound) bool {
	if p == InvalidPriority {
		panic("MergeBounds called with the invalid priority")
	}
	if bi.impossible.Has(int(k)) && (p == FlowInferred || p == Heuristics) {
		return false
	}
	tiers := bi.binfo[k]
	if tiers == nil {
		tiers = map[Priority]Bound{}
		bi.binfo[k] = tiers
	}
	if old, ok := tiers[p]; ok && old == b {
		return false
	}
	tiers[p] = b
	debugf("key %d: %s bound now %s", k, p, bi.FormatBound(b))
	return true
}

// RemoveBounds deletes k's bound at tier p, or at every tier when p is
// InvalidPriority. It reports whether anything was removed.
func (bi *Info) RemoveBounds(k BoundsKey, p Priority) bool {
	tiers := bi.binfo[k]
	if tiers == nil {
		return false
	}
	if p == InvalidPriority {
		delete(bi.binfo, k)
		return len(tiers) > 0
	}
	if _, ok := tiers[p]; !ok {
		return false
	}
	delete(tiers, p)
	if len(tiers) == 0 {
		delete(bi.binfo, k)
	}
	return true
}

// ReplaceBounds overwrites k's bound at tier p with b regardless of what
// was there.
func (bi *Info) ReplaceBounds(k BoundsKey, p Priority, b Bound) bool {
	bi.RemoveBounds(k, p)
	return bi.MergeBounds(k, p, b)
}

// GetBounds returns k's effective bound: the bound at the highest-priority
// tier that has an entry, along with that tier.
func (bi *Info) GetBounds(k BoundsKey) (Bound, Priority, bool) {
	tiers := bi.binfo[k]
	for _, p := range prioList {
		if b, ok := tiers[p]; ok {
			return b, p, true
		}
	}
	return Bound{}, InvalidPriority, false
}

// BoundsAt returns exactly the bound at tier p for k, if any.
func (bi *Info) BoundsAt(k BoundsKey, p Priority) (Bound, bool) {
	if p == InvalidPriority {
		b, _, ok := bi.GetBounds(k)
		return b, ok
	}
	b, ok := bi.binfo[k][p]
	return b, ok
}

// InsertDeclaredBounds registers d if needed and installs b as its
// user-declared bound.
func (bi *Info) InsertDeclaredBounds(d Decl, b Bound) BoundsKey {
	k := bi.GetVariable(d)
	bi.DeclareBounds(k, b)
	return k
}

// DeclareBounds installs b as k's user-declared bound.
func (bi *Info) DeclareBounds(k BoundsKey, b Bound) {
	bi.MergeBounds(k, Declared, b)
	bi.stats.DeclaredBounds.Insert(int(k))
}

// KeepHighestPriorityBounds deletes, for every key holding entries at
// multiple tiers, all but the highest-priority entry. It reports whether
// any key changed; the outer fixed-point loop uses this as part of its
// convergence test.
func (bi *Info) KeepHighestPriorityBounds() bool {
	changed := false
	for _, k := range sortedKeys(bi.binfo) {
		tiers := bi.binfo[k]
		found := false
		for _, p := range prioList {
			if _, ok := tiers[p]; !ok {
				continue
			}
			if found {
				delete(tiers, p)
				changed = true
			}
			found = true
		}
	}
	return changed
}

func (bi *Info) dumpBounds() {
	if !debugging {
		return
	}
	for _, k := range sortedKeys(bi.binfo) {
		for _, p := range prioList {
			if b, ok := bi.binfo[k][p]; ok {
				debugf("\t%s [%s] %s", bi.Var(k), p, bi.FormatBound(b))
			}
		}
	}
}
