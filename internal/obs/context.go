package obs

import (
	"context"
	"sync"
)

type (
	requestInfoKey struct{}
	sessionIDKey   struct{}
)

// RequestInfo collects attributes that inner middlewares learn about a
// request. The access logger installs it before routing and reads it back
// once the handler returns, since values put on derived contexts never flow
// back out.
type RequestInfo struct {
	mu        sync.Mutex
	userID    string
	role      string
	sessionID string
}

// WithRequestInfo installs an empty RequestInfo on ctx.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// InfoFrom returns the request's RequestInfo or nil. All methods accept a nil receiver.
func InfoFrom(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// SetUser records the authenticated caller.
func (i *RequestInfo) SetUser(userID, role string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.userID, i.role = userID, role
	i.mu.Unlock()
}

// User returns the recorded caller.
func (i *RequestInfo) User() (userID, role string) {
	if i == nil {
		return "", ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID, i.role
}

// SetSession records the checkout session being served.
func (i *RequestInfo) SetSession(id string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.sessionID = id
	i.mu.Unlock()
}

// Session returns the recorded checkout session id.
func (i *RequestInfo) Session() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessionID
}

// WithSessionID tags the context with the checkout session being served.
func WithSessionID(ctx context.Context, id string) context.Context {
	InfoFrom(ctx).SetSession(id)
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionIDFromContext returns the checkout session id, if any.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(sessionIDKey{}).(string)
	return v
}
