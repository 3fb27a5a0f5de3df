// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package probe is the composition root: it wires the sync core's three
// components - blockqueue.Queue, sync.Manager, channel.Manager - together
// behind the lifecycle shape this repository's handler has always used
// (Start/Stop, with a sync.WaitGroup tracking the import loop, which ends
// when its context is cancelled or the queue is closed), the way a full
// protocol manager would wire its downloader, fetcher, and peer set.
package probe

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/probeum/node/blockqueue"
	"github.com/probeum/node/channel"
	"github.com/probeum/node/log"
	"github.com/probeum/node/p2p/discover"
	"github.com/probeum/node/probedb"
	syncpkg "github.com/probeum/node/sync"
)

// ErrMissingParent is returned by an import callback passed to
// RunImportLoop when the block's parent is not yet known locally; the
// handler turns it into a SyncManager.RecoverGap call.
var ErrMissingParent = errors.New("probe: missing parent block")

// Config bundles the two collaborator configs spec.md §6 recognizes.
type Config struct {
	Sync  syncpkg.Config
	Queue blockqueue.Config
}

// Handler owns the durable block queue and the two supervisors built on
// top of it, and drives their Start/Stop lifecycle together.
type Handler struct {
	queue   *blockqueue.Queue
	sync    *syncpkg.Manager
	channel *channel.Manager
	log     log.Logger

	wg sync.WaitGroup
}

// NewHandler opens db as the queue's backing store and wires the sync and
// channel managers to it and to the given discovery/dialer collaborators.
func NewHandler(db probedb.Database, discovery discover.Service, dialer syncpkg.Dialer, cfg Config, localTD *big.Int) *Handler {
	queue := blockqueue.Open(db, cfg.Queue)
	sm := syncpkg.NewManager(queue, discovery, dialer, cfg.Sync, localTD, log.New("component", "sync"))
	cm := channel.NewManager(sm, discovery, dialer, log.New("component", "channel"))
	return &Handler{
		queue:   queue,
		sync:    sm,
		channel: cm,
		log:     log.New("component", "probe"),
	}
}

// Start launches the sync and channel managers' periodic workers.
func (h *Handler) Start(ctx context.Context) {
	h.sync.Start(ctx)
	h.channel.Start(ctx)
	h.log.Info("Sync core started")
}

// Stop tears down both managers and closes the block queue's backing
// store. Order matters: the workers must stop touching the queue before
// it is closed.
func (h *Handler) Stop() error {
	if err := h.sync.Stop(); err != nil {
		h.log.Error("Error stopping sync manager", "err", err)
	}
	if err := h.channel.Stop(); err != nil {
		h.log.Error("Error stopping channel manager", "err", err)
	}
	h.wg.Wait()
	err := h.queue.Close()
	h.log.Info("Sync core stopped")
	return err
}

// AddChannel registers a freshly dialed or accepted channel with the
// channel manager.
func (h *Handler) AddChannel(c *channel.Channel) { h.channel.AddChannel(c) }

// BroadcastTransaction forwards tx to every active peer.
func (h *Handler) BroadcastTransaction(tx interface{}) { h.channel.SendTransaction(tx) }

// Queue exposes the backing block queue to an external importer.
func (h *Handler) Queue() *blockqueue.Queue { return h.queue }

// SyncManager exposes the sync core to callers that need to feed it events
// the queue itself doesn't carry (e.g. a NewBlock announcement arriving
// off a peer connection, bypassing the queue entirely).
func (h *Handler) SyncManager() *syncpkg.Manager { return h.sync }

// RunImportLoop drains the queue and feeds each block to doImport, wiring
// the result back into the sync core exactly as spec.md §2's control flow
// describes: "an import worker (external) drains the queue; missing
// parents trigger gap recovery in SyncManager." doImport returning
// ErrMissingParent triggers RecoverGap; any other error is logged and the
// loop continues to the next block; success notifies NotifyNewBlockImported.
func (h *Handler) RunImportLoop(ctx context.Context, doImport func(*blockqueue.BlockWrapper) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			bw, err := h.queue.Take(ctx)
			if err != nil {
				return
			}
			if bw == nil {
				continue
			}
			if err := doImport(bw); err != nil {
				if errors.Is(err, ErrMissingParent) {
					h.sync.RecoverGap(bw)
				} else {
					h.log.Warn("Block import failed", "number", bw.Number, "hash", bw.Hash, "err", err)
				}
				continue
			}
			h.sync.NotifyNewBlockImported(bw)
		}
	}()
}
