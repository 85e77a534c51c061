// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package model

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pricecast/internal/features"
	"github.com/tomtom215/pricecast/internal/logging"
	"github.com/tomtom215/pricecast/internal/stats"
)

// Config controls boosting.
type Config struct {
	Iterations     int     `json:"iterations"`
	Depth          int     `json:"depth"`
	LearningRate   float64 `json:"learning_rate"`
	EarlyStop      int     `json:"early_stop"`
	MinLeafSamples int     `json:"min_leaf_samples"`
	MaxBins        int     `json:"max_bins"`
}

// DefaultConfig mirrors the production training settings.
func DefaultConfig() Config {
	return Config{
		Iterations:     4000,
		Depth:          8,
		LearningRate:   0.05,
		EarlyStop:      200,
		MinLeafSamples: 5,
		MaxBins:        64,
	}
}

// Node is one tree node. Internal nodes send a row to Lo when it matches
// the split and to Hi otherwise.
type Node struct {
	Leaf  bool    `json:"leaf,omitempty"`
	Value float64 `json:"v,omitempty"`

	Feature   int      `json:"f,omitempty"`
	Threshold float64  `json:"t,omitempty"`
	Left      []string `json:"cats,omitempty"`
	Lo        int      `json:"lo,omitempty"`
	Hi        int      `json:"hi,omitempty"`

	leftSet map[string]struct{}
}

func (n *Node) goesLo(r *features.Row) bool {
	if features.Kinds[n.Feature] == features.Categorical {
		_, ok := n.leftSet[r.Categorical(n.Feature)]
		return ok
	}
	return r.Numeric(n.Feature) <= n.Threshold
}

// Tree is a flat array of nodes rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(r *features.Row) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if n.goesLo(r) {
			i = n.Lo
		} else {
			i = n.Hi
		}
	}
}

// GBM is a fitted gradient-boosted ensemble. It is safe for concurrent
// Predict calls once fitted or loaded.
type GBM struct {
	Columns       []string `json:"columns"`
	Config        Config   `json:"config"`
	Base          float64  `json:"base"`
	Trees         []Tree   `json:"trees"`
	Iterations    int      `json:"iterations_run"`
	BestIteration int      `json:"best_iteration"`
	ValRMSE       float64  `json:"val_rmse,omitempty"`

	prepareOnce sync.Once
}

// Predict implements Regressor.
func (g *GBM) Predict(rows []features.Row) ([]float64, error) {
	if g == nil || len(g.Columns) == 0 {
		return nil, ErrNotFitted
	}
	g.prepareOnce.Do(g.prepare)

	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = g.predictOne(&rows[i])
	}
	return out, nil
}

func (g *GBM) predictOne(r *features.Row) float64 {
	v := g.Base
	for t := range g.Trees {
		v += g.Trees[t].predict(r)
	}
	return v
}

// prepare builds the category lookup sets of every node.
func (g *GBM) prepare() {
	for t := range g.Trees {
		for n := range g.Trees[t].Nodes {
			node := &g.Trees[t].Nodes[n]
			if node.Leaf || len(node.Left) == 0 || node.leftSet != nil {
				continue
			}
			node.leftSet = make(map[string]struct{}, len(node.Left))
			for _, c := range node.Left {
				node.leftSet[c] = struct{}{}
			}
		}
	}
}

// Encode writes g as JSON.
func (g *GBM) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(g); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load decodes a model written by Encode and checks its column layout.
func Load(r io.Reader) (*GBM, error) {
	var g GBM
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(g.Columns) != len(features.Columns) {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrColumnMismatch, len(g.Columns), len(features.Columns))
	}
	for i, c := range g.Columns {
		if c != features.Columns[i] {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrColumnMismatch, i, c, features.Columns[i])
		}
	}
	for t := range g.Trees {
		for n, node := range g.Trees[t].Nodes {
			if node.Leaf {
				continue
			}
			size := len(g.Trees[t].Nodes)
			if node.Feature < 0 || node.Feature >= features.NumColumns || node.Lo <= n || node.Hi <= n || node.Lo >= size || node.Hi >= size {
				return nil, fmt.Errorf("decode model: tree %d node %d is malformed", t, n)
			}
		}
	}
	g.prepareOnce.Do(g.prepare)
	return &g, nil
}

// Fit trains a model on rows/y. When val is non-empty, boosting stops after
// cfg.EarlyStop rounds without validation improvement and the ensemble is
// truncated to the best round.
func Fit(ctx context.Context, cfg Config, rows []features.Row, y []float64, val []features.Row, yVal []float64) (*GBM, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit: no training rows")
	}
	if len(rows) != len(y) || len(val) != len(yVal) {
		return nil, fmt.Errorf("fit: rows and targets differ in length")
	}
	if cfg.Iterations <= 0 || cfg.Depth <= 0 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("fit: invalid config %+v", cfg)
	}
	if cfg.MinLeafSamples < 1 {
		cfg.MinLeafSamples = 1
	}
	if cfg.MaxBins < 2 {
		cfg.MaxBins = 2
	}

	m := newMatrix(rows, cfg.MaxBins)
	g := &GBM{
		Columns: append([]string(nil), features.Columns...),
		Config:  cfg,
		Base:    stats.Mean(y),
	}

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = g.Base
	}
	valPred := make([]float64, len(yVal))
	for i := range valPred {
		valPred[i] = g.Base
	}

	b := &builder{m: m, cfg: cfg, grad: make([]float64, len(y)), pred: pred}
	idx := make([]int, len(y))
	log := logging.Ctx(ctx)

	best, bestScore := -1, math.Inf(1)
	for it := 0; it < cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range y {
			b.grad[i] = y[i] - pred[i]
			idx[i] = i
		}
		tree := b.tree(idx)
		tree.prepareSets()
		g.Trees = append(g.Trees, tree)
		g.Iterations = it + 1

		if len(val) == 0 {
			best = it
			continue
		}
		for i := range val {
			valPred[i] += tree.predict(&val[i])
		}
		score := rmse(valPred, yVal)
		if score < bestScore {
			best, bestScore = it, score
		} else if cfg.EarlyStop > 0 && it-best >= cfg.EarlyStop {
			log.Debug().Int("iteration", it).Int("best", best).Msg("early stopping")
			break
		}
		if it%500 == 0 {
			log.Debug().Int("iteration", it).Float64("val_rmse", score).Msg("boosting")
		}
	}

	g.Trees = g.Trees[:best+1]
	g.BestIteration = best + 1
	if len(val) > 0 {
		g.ValRMSE = bestScore
	}
	g.prepareOnce.Do(func() {})
	return g, nil
}

func (t *Tree) prepareSets() {
	for n := range t.Nodes {
		node := &t.Nodes[n]
		if node.Leaf || len(node.Left) == 0 {
			continue
		}
		node.leftSet = make(map[string]struct{}, len(node.Left))
		for _, c := range node.Left {
			node.leftSet[c] = struct{}{}
		}
	}
}

func rmse(pred, actual []float64) float64 {
	var s float64
	for i := range pred {
		d := pred[i] - actual[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(pred)))
}

// matrix is the binned training data. For numeric columns bins[f][i] is the
// index of the first edge >= the value; for categorical columns it is the
// category id.
type matrix struct {
	n     int
	bins  [features.NumColumns][]int32
	edges [features.NumColumns][]float64
	cats  [features.NumColumns][]string
}

func newMatrix(rows []features.Row, maxBins int) *matrix {
	m := &matrix{n: len(rows)}
	for f, kind := range features.Kinds {
		col := make([]int32, len(rows))
		if kind == features.Categorical {
			ids := make(map[string]int32)
			for i := range rows {
				v := rows[i].Categorical(f)
				id, ok := ids[v]
				if !ok {
					id = int32(len(m.cats[f]))
					ids[v] = id
					m.cats[f] = append(m.cats[f], v)
				}
				col[i] = id
			}
		} else {
			values := make([]float64, len(rows))
			for i := range rows {
				values[i] = rows[i].Numeric(f)
			}
			edges := binEdges(values, maxBins)
			for i, v := range values {
				col[i] = int32(sort.SearchFloat64s(edges, v))
			}
			m.edges[f] = edges
		}
		m.bins[f] = col
	}
	return m
}

// binEdges returns ascending split candidates: every distinct value when
// there are at most maxBins, otherwise maxBins-1 distinct quantiles.
func binEdges(values []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var uniq []float64
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= maxBins {
		return uniq
	}

	edges := make([]float64, 0, maxBins)
	for k := 1; k < maxBins; k++ {
		e := stats.QuantileSorted(sorted, float64(k)/float64(maxBins))
		if len(edges) == 0 || e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	return edges
}

type builder struct {
	m     *matrix
	cfg   Config
	grad  []float64
	pred  []float64
	nodes []Node
}

type split struct {
	gain    float64
	feature int
	bin     int32   // numeric: rows with bin <= this go Lo
	cats    []int32 // categorical: ids that go Lo
}

func (b *builder) tree(idx []int) Tree {
	b.nodes = nil
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *builder) grow(idx []int, depth int) int {
	var sum float64
	for _, i := range idx {
		sum += b.grad[i]
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	var s split
	if depth < b.cfg.Depth && len(idx) >= 2*b.cfg.MinLeafSamples {
		s = b.bestSplit(idx, sum)
	}
	if s.gain <= 1e-12 {
		v := b.cfg.LearningRate * sum / float64(len(idx))
		for _, i := range idx {
			b.pred[i] += v
		}
		b.nodes[id] = Node{Leaf: true, Value: v}
		return id
	}

	lo, hi := b.partition(idx, s)
	node := Node{Feature: s.feature}
	if features.Kinds[s.feature] == features.Categorical {
		node.Left = make([]string, len(s.cats))
		for k, c := range s.cats {
			node.Left[k] = b.m.cats[s.feature][c]
		}
		sort.Strings(node.Left)
	} else {
		node.Threshold = b.m.edges[s.feature][s.bin]
	}
	node.Lo = b.grow(lo, depth+1)
	node.Hi = b.grow(hi, depth+1)
	b.nodes[id] = node
	return id
}

// partition reorders idx in place so rows going Lo come first.
func (b *builder) partition(idx []int, s split) (lo, hi []int) {
	var goesLo func(i int) bool
	col := b.m.bins[s.feature]
	if features.Kinds[s.feature] == features.Categorical {
		set := make(map[int32]bool, len(s.cats))
		for _, c := range s.cats {
			set[c] = true
		}
		goesLo = func(i int) bool { return set[col[i]] }
	} else {
		goesLo = func(i int) bool { return col[i] <= s.bin }
	}

	k := 0
	for j := range idx {
		if goesLo(idx[j]) {
			idx[k], idx[j] = idx[j], idx[k]
			k++
		}
	}
	return idx[:k], idx[k:]
}

func (b *builder) bestSplit(idx []int, total float64) split {
	n := float64(len(idx))
	parent := total * total / n
	minLeaf := b.cfg.MinLeafSamples
	best := split{}

	for f, kind := range features.Kinds {
		nb := len(b.m.edges[f]) + 1
		if kind == features.Categorical {
			nb = len(b.m.cats[f])
		}
		if nb < 2 {
			continue
		}
		sums := make([]float64, nb)
		counts := make([]int, nb)
		col := b.m.bins[f]
		for _, i := range idx {
			sums[col[i]] += b.grad[i]
			counts[col[i]]++
		}

		order := make([]int32, 0, nb)
		for c := 0; c < nb; c++ {
			if counts[c] > 0 {
				order = append(order, int32(c))
			}
		}
		if kind == features.Categorical {
			sort.SliceStable(order, func(a, z int) bool {
				ma := sums[order[a]] / float64(counts[order[a]])
				mz := sums[order[z]] / float64(counts[order[z]])
				return ma < mz
			})
		}

		var sl float64
		var cl int
		for k := 0; k < len(order)-1; k++ {
			c := order[k]
			sl += sums[c]
			cl += counts[c]
			cr := len(idx) - cl
			if cl < minLeaf || cr < minLeaf {
				continue
			}
			sr := total - sl
			gain := sl*sl/float64(cl) + sr*sr/float64(cr) - parent
			if gain > best.gain {
				best = split{gain: gain, feature: f}
				if kind == features.Categorical {
					best.cats = append([]int32(nil), order[:k+1]...)
				} else {
					best.bin = c
				}
			}
		}
	}
	return best
}
