package bandcamp

import "errors"

// The crawl workers branch on exactly two conditions; everything else is a
// transient failure that leaves the entity queued for a later retry. The
// sentinels are the matching surface: errors.Is(err, ErrRateLimited) holds
// for any client error of the rate-limited kind, however it was produced.
var (
	// ErrRateLimited is returned on HTTP 429. The caller is expected to
	// back off and discard any partially stored page.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound is returned for vanished pages (HTTP 404), non-Bandcamp
	// item URLs and subscription-only releases. The entity is a permanent
	// dead end and should not be retried.
	ErrNotFound = errors.New("not found")

	// ErrPage is returned when a page fetched fine but did not contain
	// the embedded payload the crawler scrapes.
	ErrPage = errors.New("unexpected page structure")
)

// Kind classifies a client failure.
type Kind int

const (
	// KindNetwork covers transport failures and unexpected HTTP statuses.
	KindNetwork Kind = iota + 1
	// KindRateLimited is HTTP 429.
	KindRateLimited
	// KindNotFound is HTTP 404, a foreign item URL or a subscription-only
	// release.
	KindNotFound
	// KindSerialization covers request/response JSON failures.
	KindSerialization
	// KindPage means the fetched HTML lacked an expected embedded payload.
	KindPage
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindRateLimited:
		return ErrRateLimited.Error()
	case KindNotFound:
		return ErrNotFound.Error()
	case KindSerialization:
		return "serialization failure"
	case KindPage:
		return ErrPage.Error()
	}
	return "unknown failure"
}

// Error is a classified client failure. Op names what the client was doing
// (usually "fetch <url>"); Err is the underlying cause, nil when the kind
// says it all (e.g. a bare 404).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps the kind onto the package sentinels so callers never need to
// know about kinds unless they want the classification.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrPage:
		return e.Kind == KindPage
	}
	return false
}

// clientErr builds a classified error; kept as a one-liner so call sites
// read like the fmt.Errorf they replace.
func clientErr(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
