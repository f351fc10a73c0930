package gifkit

import "go.uber.org/zap"

// Notice describes a non-fatal, observable decision made while parsing
// or assembling a GIF: an unknown extension label, an unrecognized
// application extension payload, or a comment block overwritten by a
// later one. None of these abort decoding (§7).
type Notice struct {
	Kind   string // "unknown-extension", "unknown-app-extension", "comment-overwritten"
	Label  byte
	Detail string
}

// observer routes Notices to a structured logger. The zero value logs
// nothing; newObserver falls back to zap.NewNop(), which keeps the core
// usable without a logger configured by the caller.
type observer struct {
	log *zap.Logger
}

func newObserver(l *zap.Logger) *observer {
	if l == nil {
		l = zap.NewNop()
	}
	return &observer{log: l}
}

func (o *observer) notice(n Notice) {
	if o == nil || o.log == nil {
		return
	}
	o.log.Debug("gifkit: "+n.Kind,
		zap.Uint8("label", n.Label),
		zap.String("detail", n.Detail),
	)
}
