// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/go-a2a/aiplatform-go/future"
)

// named is satisfied by every generated resource proto.
type named interface {
	GetName() string
}

// Noun is the base of every remote resource type. Concrete types embed it and
// drive it through StartCreation, StartMutation and StartDeletion.
type Noun struct {
	mu sync.RWMutex

	name Name
	// proto is the cached server-side body; nil before the first round trip
	// on a pending instance.
	proto proto.Message

	// creation resolves when the resource exists server side and name is
	// known. Never nil.
	creation future.Awaitable
	// lastMutation is the tail of the mutation chain; each new mutation
	// depends on it. Never nil.
	lastMutation future.Awaitable

	mgr    *future.Manager
	logger *slog.Logger
}

// NewPending creates a noun whose remote resource does not exist yet. The
// caller must follow up with StartCreation.
func NewPending(mgr *future.Manager, logger *slog.Logger) *Noun {
	if mgr == nil {
		mgr = future.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Noun{mgr: mgr, logger: logger}
}

// NewFromName creates a noun for an already-existing resource. Its creation
// future is complete from the start.
func NewFromName(n Name, mgr *future.Manager, logger *slog.Logger) *Noun {
	if mgr == nil {
		mgr = future.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := future.Completed(fmt.Sprintf("%s.exists", n.Collection), proto.Message(nil))
	return &Noun{
		name:         n,
		creation:     done,
		lastMutation: done,
		mgr:          mgr,
		logger:       logger,
	}
}

// Manager returns the future manager this noun submits through.
func (n *Noun) Manager() *future.Manager {
	return n.mgr
}

// Logger returns the noun's logger.
func (n *Noun) Logger() *slog.Logger {
	return n.logger
}

// StartCreation submits the create callable with the given dependency edges
// and registers the resulting future as both the creation and the mutation
// chain tail. On success the returned proto is cached and the canonical name
// adopted from it.
//
// It must be called exactly once, on a noun built with [NewPending].
func (n *Noun) StartCreation(ctx context.Context, opName string, deps []future.Awaitable, create func(context.Context) (proto.Message, error)) *future.Future[proto.Message] {
	f := future.Submit(n.mgr, ctx, opName, deps, func(ctx context.Context) (proto.Message, error) {
		msg, err := create(ctx)
		if err != nil {
			return nil, err
		}
		if err := n.adopt(msg); err != nil {
			return nil, err
		}
		return msg, nil
	})

	n.mu.Lock()
	n.creation = f
	n.lastMutation = f
	n.mu.Unlock()
	return f
}

// StartMutation submits a mutation that implicitly depends on the previous
// mutation on this noun, preserving program order server side. A non-nil
// returned proto replaces the cache.
func (n *Noun) StartMutation(ctx context.Context, opName string, extraDeps []future.Awaitable, mutate func(context.Context) (proto.Message, error)) *future.Future[proto.Message] {
	n.mu.Lock()
	deps := append([]future.Awaitable{n.ensureChainLocked()}, extraDeps...)

	f := future.Submit(n.mgr, ctx, opName, deps, func(ctx context.Context) (proto.Message, error) {
		msg, err := mutate(ctx)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			n.setProto(msg)
		}
		return msg, nil
	})

	n.lastMutation = f
	n.mu.Unlock()
	return f
}

// StartDeletion submits the deletion, depending on the instance's last
// mutation.
func (n *Noun) StartDeletion(ctx context.Context, opName string, del func(context.Context) error) *future.Future[struct{}] {
	n.mu.Lock()
	deps := []future.Awaitable{n.ensureChainLocked()}

	f := future.Submit(n.mgr, ctx, opName, deps, func(ctx context.Context) (struct{}, error) {
		if err := del(ctx); err != nil {
			return struct{}{}, err
		}
		n.mu.Lock()
		n.proto = nil
		n.mu.Unlock()
		return struct{}{}, nil
	})

	n.lastMutation = f
	n.mu.Unlock()
	return f
}

// ensureChainLocked returns the mutation chain tail, synthesizing a complete
// one for nouns that never registered a creation. Callers hold n.mu.
func (n *Noun) ensureChainLocked() future.Awaitable {
	if n.lastMutation == nil {
		done := future.Completed("noop", proto.Message(nil))
		n.creation = done
		n.lastMutation = done
	}
	return n.lastMutation
}

// adopt records the server-assigned canonical name and body after creation.
func (n *Noun) adopt(msg proto.Message) error {
	body, ok := msg.(named)
	if !ok || body.GetName() == "" {
		return fmt.Errorf("create response %T carries no resource name", msg)
	}
	parsed, err := ParseName(body.GetName())
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.name = parsed
	n.proto = msg
	n.mu.Unlock()

	n.logger.Debug("resource created",
		slog.String("resource_name", parsed.String()),
	)
	return nil
}

// setProto replaces the cached server-side body.
func (n *Noun) setProto(msg proto.Message) {
	n.mu.Lock()
	n.proto = msg
	n.mu.Unlock()
}

// SetBody seeds the cached body of a resource constructed from a list
// response, where the server already returned the full proto.
func (n *Noun) SetBody(msg proto.Message) {
	n.setProto(msg)
}

// Creation returns the creation future for use as a dependency edge of other
// submissions.
func (n *Noun) Creation() future.Awaitable {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.creation == nil {
		return future.Completed("noop", proto.Message(nil))
	}
	return n.creation
}

// LastMutation returns the current tail of the mutation chain.
func (n *Noun) LastMutation() future.Awaitable {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.lastMutation == nil {
		return future.Completed("noop", proto.Message(nil))
	}
	return n.lastMutation
}

// WaitForCreation blocks until the creation future is terminal and returns
// its error, if any. For a noun constructed from an existing name it returns
// immediately.
func (n *Noun) WaitForCreation(ctx context.Context) error {
	creation := n.Creation()
	select {
	case <-creation.DoneChan():
		return creation.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResourceName returns the canonical name, blocking until the creation
// future resolves for a pending instance.
func (n *Noun) ResourceName(ctx context.Context) (string, error) {
	if err := n.WaitForCreation(ctx); err != nil {
		return "", err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.name.IsZero() {
		return "", errors.New("resource has no canonical name")
	}
	return n.name.String(), nil
}

// Name returns the parsed canonical name, blocking like [Noun.ResourceName].
func (n *Noun) Name(ctx context.Context) (Name, error) {
	if err := n.WaitForCreation(ctx); err != nil {
		return Name{}, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name, nil
}

// Snapshot returns the cached server-side body, blocking until the creation
// future resolves. The body reflects server state no older than the last
// synchronous round trip on this instance.
func (n *Noun) Snapshot(ctx context.Context) (proto.Message, error) {
	if err := n.WaitForCreation(ctx); err != nil {
		return nil, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.proto == nil {
		return nil, errors.New("resource body not fetched; call Refresh first")
	}
	return n.proto, nil
}

// Refresh synchronously re-fetches the server-side body through get and
// replaces the cache.
func (n *Noun) Refresh(ctx context.Context, get func(ctx context.Context, name string) (proto.Message, error)) error {
	name, err := n.ResourceName(ctx)
	if err != nil {
		return err
	}

	msg, err := get(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", name, err)
	}
	n.setProto(msg)
	return nil
}
