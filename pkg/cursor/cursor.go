// Package cursor provides a lazy, windowed view over the records of one kind.
//
// A Cursor fetches a window of rows around the requested position and serves
// positional reads from it until a read falls outside. In random mode it
// walks a shuffled permutation of the positions, fetching one row at a time,
// so a full traversal visits every row once without loading the whole
// result.
package cursor

import (
	"iter"
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/mesh-intelligence/possum/pkg/types"
)

// DefaultWindowSize is the number of rows fetched per refill.
const DefaultWindowSize = types.DefaultWindowSize

// Finder is the part of the entity store a cursor reads through.
type Finder interface {
	Find(k *types.Kind, q types.Query) ([]*types.Record, error)
	Count(k *types.Kind, where string, args ...any) (int, error)
	Delete(k *types.Kind, id int64) error
}

// Option configures a Cursor.
type Option func(*Cursor)

// WithWindowSize sets the window size. Values below one are ignored.
func WithWindowSize(n int) Option {
	return func(c *Cursor) {
		if n > 0 {
			c.windowSize = n
		}
	}
}

// WithRand sets the source used to shuffle positions in random mode.
func WithRand(r *rand.Rand) Option {
	return func(c *Cursor) {
		if r != nil {
			c.rnd = r
		}
	}
}

// WithFields restricts loaded records to the named fields.
func WithFields(names ...string) Option {
	return func(c *Cursor) {
		c.fields = names
	}
}

// Cursor is a sequence view over a filtered, ordered query. It is not safe
// for concurrent use.
type Cursor struct {
	finder     Finder
	kind       *types.Kind
	windowSize int
	rnd        *rand.Rand
	fields     []string

	where string
	args  []any
	order string

	// window caches rows starting at backing offset start.
	start  int
	window []*types.Record

	count int // -1 until computed

	random bool
	perm   []int
}

// New returns a cursor over every record of k.
func New(f Finder, k *types.Kind, opts ...Option) *Cursor {
	c := &Cursor{
		finder:     f,
		kind:       k,
		windowSize: DefaultWindowSize,
		count:      -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Filter sets the WHERE predicate and its arguments and resets the cursor.
func (c *Cursor) Filter(where string, args ...any) *Cursor {
	c.where = where
	c.args = args
	c.reset()
	return c
}

// OrderBy sets the ORDER BY clause and resets the cursor.
func (c *Cursor) OrderBy(order string) *Cursor {
	c.order = order
	c.reset()
	return c
}

func (c *Cursor) reset() {
	c.start = 0
	c.window = nil
	c.count = -1
	c.perm = nil
}

// Count returns the number of rows in the view. It is read from the store
// once per filter and order and then tracked locally.
func (c *Cursor) Count() (int, error) {
	if c.count >= 0 {
		return c.count, nil
	}
	n, err := c.finder.Count(c.kind, c.where, c.args...)
	if err != nil {
		return 0, err
	}
	c.count = n
	return n, nil
}

// EnableRandom switches to shuffled traversal over the current count.
func (c *Cursor) EnableRandom() error {
	c.random = true
	c.window = nil
	c.perm = nil
	return c.ensurePerm()
}

// DisableRandom returns to ordered traversal.
func (c *Cursor) DisableRandom() {
	c.random = false
	c.window = nil
	c.perm = nil
}

// Random reports whether shuffled traversal is enabled.
func (c *Cursor) Random() bool {
	return c.random
}

func (c *Cursor) ensurePerm() error {
	if !c.random || c.perm != nil {
		return nil
	}
	n, err := c.Count()
	if err != nil {
		return err
	}
	c.perm = c.rnd.Perm(n)
	return nil
}

// At returns the row at pos. Returns ErrOutOfRange when pos is outside the
// view or the row it maps to no longer exists.
func (c *Cursor) At(pos int) (*types.Record, error) {
	i, err := c.locate(pos)
	if err != nil {
		return nil, err
	}
	return c.window[i], nil
}

// DeleteAt deletes the row at pos from the store and from the view.
// Positions after pos shift down by one. In random mode the permutation is
// not renumbered, so a later position may map past the shrunken view and
// return ErrOutOfRange.
func (c *Cursor) DeleteAt(pos int) error {
	i, err := c.locate(pos)
	if err != nil {
		return err
	}
	rec := c.window[i]
	if err := c.finder.Delete(c.kind, rec.ID); err != nil {
		return err
	}
	c.window = append(c.window[:i], c.window[i+1:]...)
	if c.count > 0 {
		c.count--
	}
	return nil
}

// All iterates the view in position order, or in shuffled order when
// random mode is on. Iteration stops at the first error.
func (c *Cursor) All() iter.Seq2[*types.Record, error] {
	return func(yield func(*types.Record, error) bool) {
		n, err := c.Count()
		if err != nil {
			yield(nil, err)
			return
		}
		for pos := 0; pos < n; pos++ {
			rec, err := c.At(pos)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// locate makes sure the row for pos is cached and returns its index in the
// window.
func (c *Cursor) locate(pos int) (int, error) {
	n, err := c.Count()
	if err != nil {
		return 0, err
	}
	if pos < 0 || pos >= n {
		return 0, errors.Wrapf(types.ErrOutOfRange, "position %d of %d", pos, n)
	}

	offset, size := pos, c.windowSize
	if c.random {
		if err := c.ensurePerm(); err != nil {
			return 0, err
		}
		if pos >= len(c.perm) {
			return 0, errors.Wrapf(types.ErrOutOfRange, "position %d of %d", pos, len(c.perm))
		}
		offset, size = c.perm[pos], 1
	}

	if offset >= c.start && offset < c.start+len(c.window) {
		return offset - c.start, nil
	}
	if err := c.fetch(offset, size); err != nil {
		return 0, err
	}
	if len(c.window) == 0 {
		return 0, errors.Wrapf(types.ErrOutOfRange, "position %d maps to offset %d past the result", pos, offset)
	}
	return 0, nil
}

// fetch replaces the window with size rows starting at offset.
func (c *Cursor) fetch(offset, size int) error {
	recs, err := c.finder.Find(c.kind, types.Query{
		Where:   c.where,
		Args:    c.args,
		OrderBy: c.order,
		Limit:   size,
		Offset:  offset,
		Fields:  c.fields,
	})
	if err != nil {
		c.window = nil
		return err
	}
	c.start = offset
	c.window = recs
	return nil
}
