package analyses

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"salesviz/internal/models"
)

// Catalog is an ordered set of analyses.
type Catalog struct {
	list []Analysis
	byID map[string]int
}

// NewCatalog builds a catalog; IDs must be unique.
func NewCatalog(list ...Analysis) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(list))}
	for _, a := range list {
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate analysis id %q", a.ID)
		}
		c.byID[a.ID] = len(c.list)
		c.list = append(c.list, a)
	}
	return c, nil
}

// Default returns Q1..Q12 in display order.
func Default() *Catalog {
	c, err := NewCatalog(
		salesByItem(),
		salesByGroup(),
		salesByMonth(),
		salesByWeekday(),
		salesByDayOfMonth(),
		salesByHour(),
		groupShare(),
		groupShareByMonth(),
		itemShareByGroup(),
		itemShareByGroupMonth(),
		purchaseFrequency(),
		spendDistribution(),
	)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the analyses in order.
func (c *Catalog) All() []Analysis {
	return append([]Analysis(nil), c.list...)
}

// Len returns the number of analyses.
func (c *Catalog) Len() int {
	return len(c.list)
}

// Get looks up an analysis by ID.
func (c *Catalog) Get(id string) (Analysis, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Analysis{}, false
	}
	return c.list[i], true
}

// First returns the ID of the first analysis.
func (c *Catalog) First() string {
	if len(c.list) == 0 {
		return ""
	}
	return c.list[0].ID
}

// Neighbors returns the IDs before and after id, wrapping around.
func (c *Catalog) Neighbors(id string) (prev, next string) {
	i, ok := c.byID[id]
	if !ok || len(c.list) == 0 {
		return "", ""
	}
	n := len(c.list)
	return c.list[(i-1+n)%n].ID, c.list[(i+1)%n].ID
}

// Run executes the analysis with the given ID.
func (c *Catalog) Run(id string, ds *models.Dataset, opts Options) (*models.ChartResult, error) {
	a, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalysis, id)
	}
	return a.Run(ds, opts)
}

// Outcome is the result of one analysis in a batch run. Exactly one of
// Result and Err is set.
type Outcome struct {
	Analysis Analysis
	Result   *models.ChartResult
	Err      error
}

// RunAll executes every analysis concurrently against the same dataset,
// with at most workers running at once (0 means one per analysis).
// Analysis errors are reported per Outcome; only context cancellation
// fails the batch. done, if non-nil, is called once per finished analysis
// from the worker goroutine.
func (c *Catalog) RunAll(ctx context.Context, ds *models.Dataset, opts Options, workers int, done func(Outcome)) ([]Outcome, error) {
	out := make([]Outcome, len(c.list))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, a := range c.list {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := a.Run(ds, opts)
			out[i] = Outcome{Analysis: a, Result: res, Err: err}
			if done != nil {
				done(out[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
