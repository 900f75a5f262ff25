package kanren

import "context"

// Aggregate runs subgoal to exhaustion against each input substitution
// in isolation, collects the walked value of v from every result, and
// for that input emits exactly one substitution with v bound to a Seq
// of the collected values (spec.md §4.E). Unlike And/Or, this is a
// synchronous barrier: nothing is emitted for a given input until
// subgoal's entire stream for that input has been drained, so a
// subgoal with an infinite stream for some input makes Aggregate never
// terminate for it.
func Aggregate(v *Var, subgoal Goal) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		return in.FlatMap(func(s *Substitution) *Stream {
			results := subgoal(ctx, From(s)).ToSlice()
			select {
			case <-ctx.Done():
				return Empty()
			default:
			}
			collected := make([]Term, 0, len(results))
			for _, r := range results {
				collected = append(collected, r.DeepWalk(v))
			}
			out, ok := Unify(v, NewSeq(collected...), s)
			if !ok {
				return Empty()
			}
			return From(out)
		})
	}
}

// GroupFold combines one group's values into the group's output term.
// It receives the group's key (already walked) and the walked values
// collected for valueVar across every member of the group, in the
// order subgoal produced them.
type GroupFold func(key Term, values []Term) Term

// GroupBy runs subgoal to exhaustion against each input substitution
// in isolation, partitions its results by the walked value of keyVar,
// and for each distinct key emits one substitution with keyVar bound
// to the group's key and outVar bound to fold(key, values) (spec.md
// §4.E). Distinct keys are emitted in first-seen order. If dropOthers
// is false, every other variable bound by the group's first result is
// preserved in that group's output substitution; if true, each
// group's output substitution is built fresh from the input and
// carries only keyVar and outVar.
func GroupBy(keyVar, valueVar, outVar *Var, subgoal Goal, dropOthers bool, fold GroupFold) Goal {
	return func(ctx context.Context, in *Stream) *Stream {
		return in.FlatMap(func(s *Substitution) *Stream {
			results := subgoal(ctx, From(s)).ToSlice()
			select {
			case <-ctx.Done():
				return Empty()
			default:
			}

			type group struct {
				key     Term
				values  []Term
				witness *Substitution
			}
			var order []Term
			groups := make(map[string]*group)

			for _, r := range results {
				key := r.DeepWalk(keyVar)
				gkey := key.String()
				g, ok := groups[gkey]
				if !ok {
					g = &group{key: key, witness: r}
					groups[gkey] = g
					order = append(order, key)
				}
				g.values = append(g.values, r.DeepWalk(valueVar))
			}

			rows := make([]*Substitution, 0, len(order))
			for _, key := range order {
				g := groups[key.String()]
				folded := fold(g.key, g.values)

				base := s
				if !dropOthers {
					base = g.witness
				}
				out, ok := Unify(keyVar, g.key, base)
				if !ok {
					continue
				}
				out, ok = Unify(outVar, folded, out)
				if !ok {
					continue
				}
				rows = append(rows, out)
			}
			return From(rows...)
		})
	}
}
