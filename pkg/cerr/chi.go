package cerr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/agentdeck/agentdeck/pkg/clog"
)

// reply accumulates what a handler wants to send; the middleware turns
// it into exactly one JSON response after the handler returns.
type reply struct {
	body any
	err  error
}

type replyKey struct{}

func withReply(ctx context.Context, rep *reply) context.Context {
	return context.WithValue(ctx, replyKey{}, rep)
}

func replyFrom(ctx context.Context) *reply {
	rep, _ := ctx.Value(replyKey{}).(*reply)
	return rep
}

// SetJSONResponse stores the success body for the surrounding middleware.
func SetJSONResponse(ctx context.Context, body any) {
	if rep := replyFrom(ctx); rep != nil {
		rep.body = body
	}
}

// SetJSONError stores the failure for the surrounding middleware. An
// error wins over any body set on the same request.
func SetJSONError(ctx context.Context, err error) {
	if rep := replyFrom(ctx); rep != nil {
		rep.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONResponseChiMiddleware renders whatever the handler stored via
// SetJSONResponse or SetJSONError as a JSON body once the handler returns.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rep := &reply{}
			ctx := withReply(r.Context(), rep)
			next.ServeHTTP(w, r.WithContext(ctx))
			rep.render(ctx, w)
		})
	}
}

func (rep *reply) render(ctx context.Context, w http.ResponseWriter) {
	if rep.err != nil {
		writeError(ctx, w, classify(ctx, rep.err))
		return
	}
	// Handlers that write the response themselves, the websocket upgrade
	// among them, leave the reply empty.
	if rep.body == nil {
		return
	}
	data, err := json.Marshal(rep.body)
	if err != nil {
		writeError(ctx, w, NewError(Internal, "server error", err))
		return
	}
	writeBody(ctx, w, http.StatusOK, data)
}

// classify normalizes an arbitrary handler error into *Error and records
// it on the request log. Cancellations are not logged as failures.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) || isCanceledLookup(err) {
		return NewError(Canceled, "connection closed", err)
	}
	clog.AddError(ctx, err)
	var e *Error
	if errors.As(err, &e) {
		if e.Stack != "" {
			clog.AddStack(ctx, e.Stack)
		}
		return e
	}
	return NewError(Unknown, "unknown error", err)
}

// isCanceledLookup spots DNS lookups aborted because the client went
// away, which otherwise surface as opaque *net.DNSError values.
func isCanceledLookup(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(ctx context.Context, w http.ResponseWriter, e *Error) {
	data, err := json.Marshal(errorBody{Code: e.Code.String(), Message: e.Msg})
	if err != nil {
		data = []byte(`{"code":"internal","message":"server error"}`)
		clog.AddError(ctx, errors.Join(e, err))
	}
	writeBody(ctx, w, e.Code.HTTPCode(), data)
}

func writeBody(ctx context.Context, w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		clog.AddError(ctx, err)
	}
}
