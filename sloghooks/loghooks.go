package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/strata"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	LockTimeoutEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr    atomic.Uint64
	lockTimeoutCtr atomic.Uint64
}

var _ strata.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("strata.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) WriteRetry(storageKey string, attempt int) {
	if h.l == nil {
		return
	}
	h.l.Debug("strata.write_retry",
		"key", h.redact(storageKey),
		"attempt", attempt)
}

func (h *Hooks) WriteRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("strata.write_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) LockTimeout(key string) {
	if h.l == nil || !sample(h.opts.LockTimeoutEvery, &h.lockTimeoutCtr) {
		return
	}
	h.l.Info("strata.lock_timeout",
		"key", h.redact(key))
}

func (h *Hooks) Resurrected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("strata.resurrected",
		"key", h.redact(key))
}

func (h *Hooks) LoaderPanic(key string) {
	if h.l == nil {
		return
	}
	h.l.Error("strata.loader_panic",
		"key", h.redact(key))
}

func (h *Hooks) BusGap(ns string) {
	if h.l == nil {
		return
	}
	h.l.Warn("strata.bus_gap",
		"ns", ns,
		"msg", "invalidation cursor behind retention; l1 cleared")
}

func (h *Hooks) SerializerFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("strata.serializer_failed",
		"key", h.redact(key),
		"err", err)
}
