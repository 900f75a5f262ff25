package kanren

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Stream is a cold, pull-based sequence of substitutions. Nothing runs
// until Next is called, and every combinator (Map, FlatMap, Filter,
// Merge, Share, Take) returns a new Stream that re-derives its values
// on each pull rather than precomputing them — this is what lets an
// infinite or expensive goal stay lazy until something actually
// consumes it (spec.md §4.B).
//
// A Stream is not safe for concurrent pulls by multiple goroutines
// unless it has been wrapped with Share.
type Stream struct {
	pull func() (*Substitution, bool)
}

// Of builds a Stream directly from a pull function: each call to gen
// either returns the next substitution and true, or (nil, false) to
// signal exhaustion.
func Of(gen func() (*Substitution, bool)) *Stream {
	return &Stream{pull: gen}
}

// Empty returns a Stream with no elements.
func Empty() *Stream {
	return Of(func() (*Substitution, bool) { return nil, false })
}

// From builds a Stream that yields items in order, once each.
func From(items ...*Substitution) *Stream {
	i := 0
	return Of(func() (*Substitution, bool) {
		if i >= len(items) {
			return nil, false
		}
		v := items[i]
		i++
		return v, true
	})
}

// Next pulls the next value from the stream, or returns (nil, false)
// once it is exhausted. Calling Next after exhaustion is safe and
// continues to return (nil, false).
func (s *Stream) Next() (*Substitution, bool) {
	return s.pull()
}

// once wraps s so that only its first successful pull is ever
// delivered; every subsequent pull reports exhaustion without calling
// s's underlying generator again. No goal in this package currently
// wraps its output with it.
func (s *Stream) once() *Stream {
	done := false
	return Of(func() (*Substitution, bool) {
		if done {
			return nil, false
		}
		done = true
		return s.pull()
	})
}

// Map transforms each substitution the stream produces.
func (s *Stream) Map(f func(*Substitution) *Substitution) *Stream {
	return Of(func() (*Substitution, bool) {
		v, ok := s.pull()
		if !ok {
			return nil, false
		}
		return f(v), true
	})
}

// Filter keeps only the substitutions for which pred returns true.
func (s *Stream) Filter(pred func(*Substitution) bool) *Stream {
	return Of(func() (*Substitution, bool) {
		for {
			v, ok := s.pull()
			if !ok {
				return nil, false
			}
			if pred(v) {
				return v, true
			}
		}
	})
}

// FlatMap applies f to each substitution and concatenates the
// resulting streams in order — the engine's bind operator (spec.md
// §4.C: And is FlatMap's left fold over a goal sequence).
func (s *Stream) FlatMap(f func(*Substitution) *Stream) *Stream {
	var cur *Stream
	return Of(func() (*Substitution, bool) {
		for {
			if cur != nil {
				if v, ok := cur.pull(); ok {
					return v, true
				}
				cur = nil
			}
			v, ok := s.pull()
			if !ok {
				return nil, false
			}
			cur = f(v)
		}
	})
}

// Merge concurrently drains every stream in streams and interleaves
// their output in arrival order (spec.md §4.B: "merge emits in arrival
// order"). Each stream is pulled from its own goroutine via an
// errgroup, so a branch that blocks on a slow producer (e.g. a
// relation goal awaiting a DataStore round trip) never stalls its
// siblings — exactly the property Or needs for its branches. Nothing
// runs until the returned Stream's first pull; ctx cancellation stops
// the merge and aborts every still-running branch.
func Merge(ctx context.Context, streams ...*Stream) *Stream {
	out := make(chan *Substitution)
	var start sync.Once

	begin := func() {
		go func() {
			defer close(out)
			grp, gctx := errgroup.WithContext(ctx)
			for _, st := range streams {
				st := st
				grp.Go(func() error {
					for {
						v, ok := st.pull()
						if !ok {
							return nil
						}
						select {
						case out <- v:
						case <-gctx.Done():
							return gctx.Err()
						}
					}
				})
			}
			_ = grp.Wait()
		}()
	}

	return Of(func() (*Substitution, bool) {
		if ctx.Err() != nil {
			return nil, false
		}
		start.Do(begin)
		select {
		case v, ok := <-out:
			return v, ok
		case <-ctx.Done():
			return nil, false
		}
	})
}

// Share wraps s so that multiple independent consumers can each pull
// the full sequence exactly once without racing on the underlying
// generator: the first pull of a given position fetches from s and
// caches it; later consumers replay the cache. This is what lets Or
// fan its branches out from one shared input stream, and what lets
// the relation engine's sibling goals fan out from one shared upstream
// substitution stream (spec.md §4.H), without re-running whatever
// produced the original stream. The returned factory's streams are
// safe to pull concurrently from different goroutines (Or drives its
// branches that way via Merge).
//
// The replay cache is deliberately unbounded rather than capped with
// an eviction policy: a capped buffer would have to evict an entry
// before every registered consumer has read it, but Share has no way
// to know how many consumer streams will ever be requested from the
// returned factory or how far behind a slow one has fallen, so any
// eviction point risks silently truncating a consumer's replay instead
// of bounding memory. Every caller in this engine (Or's branches, a
// relation's sibling fan-out) shares one upstream whose length is
// bounded by its own substitution batch or disjunct count, which the
// engine already caps via BatchSize/minGrounded-style knobs, so the
// cache's practical size is bounded by those, not by Share itself.
func (s *Stream) Share() func() *Stream {
	var mu sync.Mutex
	var cache []*Substitution
	var exhausted bool

	return func() *Stream {
		i := 0
		return Of(func() (*Substitution, bool) {
			mu.Lock()
			defer mu.Unlock()
			if i < len(cache) {
				v := cache[i]
				i++
				return v, true
			}
			if exhausted {
				return nil, false
			}
			v, ok := s.pull()
			if !ok {
				exhausted = true
				return nil, false
			}
			cache = append(cache, v)
			i++
			return v, true
		})
	}
}

// Take returns a Stream yielding at most n values from s.
func (s *Stream) Take(n int) *Stream {
	count := 0
	return Of(func() (*Substitution, bool) {
		if count >= n {
			return nil, false
		}
		v, ok := s.pull()
		if !ok {
			return nil, false
		}
		count++
		return v, true
	})
}

// ToSlice drains s fully, returning every substitution it produced.
func (s *Stream) ToSlice() []*Substitution {
	var out []*Substitution
	for {
		v, ok := s.pull()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// First returns the first substitution s produces, if any.
func (s *Stream) First() (*Substitution, bool) {
	return s.pull()
}

// Last drains s fully and returns the final substitution it produced,
// if any.
func (s *Stream) Last() (*Substitution, bool) {
	var last *Substitution
	found := false
	for {
		v, ok := s.pull()
		if !ok {
			return last, found
		}
		last = v
		found = true
	}
}
