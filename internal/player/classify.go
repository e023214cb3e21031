package player

import "strings"

// ErrorKind categorizes a raw backend error message
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota // Unclassified; treated as fallback-eligible
	ErrorCodec                    // Format unsupported by the current backend
	ErrorNetwork                  // Connectivity problem; switching backends will not help
	ErrorSource                   // Stream itself invalid or expired
)

// String returns a human-readable representation of the ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case ErrorCodec:
		return "codec"
	case ErrorNetwork:
		return "network"
	case ErrorSource:
		return "source"
	default:
		return "unknown"
	}
}

// Classification is the typed result of classifying one raw error
type Classification struct {
	Kind           ErrorKind
	ShouldFallback bool   // Whether trying another backend may recover playback
	Message        string // User-facing failure message
}

// Indicator tables, matched case-insensitively as substrings.
// Evaluation order is codec, then network, then source: a message
// containing both a codec and a network marker classifies as codec.
var (
	codecIndicators = []string{
		"codec",
		"decoder",
		"decoding failed",
		"unsupported format",
		"unsupported video",
		"unsupported audio",
		"hevc",
		"h.265",
		"h265",
		"av1",
		"av01",
		"dolby vision",
		"dvhe",
		"vp9",
		"no video output",
		"hardware decoding",
	}

	networkIndicators = []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"connection failed",
		"unreachable",
		"network",
		"failed to fetch",
		"name resolution",
		"dns",
		"no route to host",
	}

	sourceIndicators = []string{
		"400",
		"401",
		"403",
		"404",
		"410",
		"500",
		"502",
		"503",
		"not found",
		"forbidden",
		"unauthorized",
		"gone",
		"behind live window",
		"expired",
		"invalid playlist",
		"empty playlist",
	}
)

// Classify maps a raw backend error message to a typed classification
// and a fallback recommendation. Pure and deterministic.
//
// Codec errors recommend fallback: a different backend may carry the
// missing decoder. Network and source errors never do, since another
// backend cannot fix connectivity or a dead stream. Anything
// unrecognized is optimistically treated as fallback-eligible rather
// than surfacing an unexplained failure.
func Classify(raw string) Classification {
	msg := strings.ToLower(raw)

	if matchAny(msg, codecIndicators) {
		return Classification{
			Kind:           ErrorCodec,
			ShouldFallback: true,
			Message:        "This stream uses a format the current player cannot decode.",
		}
	}

	if matchAny(msg, networkIndicators) {
		return Classification{
			Kind:           ErrorNetwork,
			ShouldFallback: false,
			Message:        "Playback failed due to a network problem. Check your connection and try again.",
		}
	}

	if matchAny(msg, sourceIndicators) {
		return Classification{
			Kind:           ErrorSource,
			ShouldFallback: false,
			Message:        "This stream is unavailable or has expired. Try another stream.",
		}
	}

	return Classification{
		Kind:           ErrorUnknown,
		ShouldFallback: true,
		Message:        "Playback failed for an unknown reason.",
	}
}

func matchAny(msg string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
