// Package signal watches the live block stream for tracked wallets rotating
// into the same token and raises alerts when enough distinct wallets buy it
// within a trailing block window.
package signal

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradewatch/tradewatch/pkg/report"
)

// Entry is one qualifying buy alive in the window.
type Entry struct {
	Token  common.Address
	Wallet common.Address
	Amount *big.Int
	Report *report.Report
	Time   time.Time
	Reason string
}

// Window is a fixed ring of per-block entry buckets plus a token index over
// everything currently alive. An entry lives in exactly one bucket and leaves
// the index the moment its bucket is evicted by rotation.
type Window struct {
	buckets [][]*Entry
	head    int
	index   map[common.Address][]*Entry
}

func NewWindow(blocks int) *Window {
	return &Window{
		buckets: make([][]*Entry, blocks),
		index:   make(map[common.Address][]*Entry),
	}
}

// Add appends e to the current block's bucket.
func (w *Window) Add(e *Entry) {
	w.buckets[w.head] = append(w.buckets[w.head], e)
	w.index[e.Token] = append(w.index[e.Token], e)
}

// Advance rotates the ring: the oldest bucket is evicted and its entries
// pruned from the token index, then its slot becomes the new current bucket.
func (w *Window) Advance() {
	w.head = (w.head + 1) % len(w.buckets)
	evicted := w.buckets[w.head]
	w.buckets[w.head] = nil
	for _, e := range evicted {
		w.unindex(e)
	}
}

func (w *Window) unindex(e *Entry) {
	alive := w.index[e.Token]
	for i, other := range alive {
		if other == e {
			alive = append(alive[:i], alive[i+1:]...)
			break
		}
	}
	if len(alive) == 0 {
		delete(w.index, e.Token)
	} else {
		w.index[e.Token] = alive
	}
}

// Alive is the number of entries currently indexed for token.
func (w *Window) Alive(token common.Address) int {
	return len(w.index[token])
}

// DistinctWallets reduces the token's alive entries to one per wallet,
// keeping the most recent entry of each.
func (w *Window) DistinctWallets(token common.Address) []*Entry {
	alive := w.index[token]
	latest := make(map[common.Address]int, len(alive))
	out := make([]*Entry, 0, len(alive))
	for _, e := range alive {
		if i, ok := latest[e.Wallet]; ok {
			out[i] = e
			continue
		}
		latest[e.Wallet] = len(out)
		out = append(out, e)
	}
	return out
}

// Consume removes every entry for token from the window and returns them,
// deduplicated per wallet. Used when a major signal fires so the same buys
// cannot trigger twice.
func (w *Window) Consume(token common.Address) []*Entry {
	entries := w.DistinctWallets(token)
	if len(entries) == 0 {
		return nil
	}
	delete(w.index, token)
	for i, bucket := range w.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			if e.Token != token {
				kept = append(kept, e)
			}
		}
		w.buckets[i] = kept
	}
	return entries
}
