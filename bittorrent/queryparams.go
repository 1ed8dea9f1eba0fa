package bittorrent

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrKeyNotFound is returned when a provided key has no value associated
// with it.
var ErrKeyNotFound = errors.New("bittorrent: value for the provided key does not exist")

// ErrInvalidInfoHash is returned when parsing a query encounters an
// info_hash value of the wrong length.
var ErrInvalidInfoHash = errors.New("bittorrent: invalid infohash")

// QueryParams parses a raw HTTP query string (the part after '?') without
// going through net/url.ParseQuery, so every repeated info_hash can be kept
// in announce order rather than collapsed into the last one, and it
// implements Params directly.
type QueryParams struct {
	params     map[string]string
	infoHashes []InfoHash
}

// NewQueryParams parses a raw URL query string, byte by byte, matching the
// shape BEP-3 URLs actually take: '&'- or ';'-separated key=value pairs,
// percent-encoded, with info_hash allowed to repeat for a scrape request.
func NewQueryParams(query string) (*QueryParams, error) {
	var (
		keyStart, keyEnd int
		valStart, valEnd int
		onKey            = true
	)
	q := &QueryParams{params: make(map[string]string)}

	for i, length := 0, len(query); i < length; i++ {
		separator := query[i] == '&' || query[i] == ';' || query[i] == '?'
		last := i == length-1

		if separator || last {
			if onKey && !last {
				keyStart = i + 1
				continue
			}
			if last && !separator && !onKey {
				valEnd = i
			}

			keyStr, err := url.QueryUnescape(query[keyStart : keyEnd+1])
			if err != nil {
				return nil, err
			}

			var valStr string
			if valEnd > 0 {
				valStr, err = url.QueryUnescape(query[valStart : valEnd+1])
				if err != nil {
					return nil, err
				}
			}

			if keyStr == "info_hash" {
				if len(valStr) != 20 {
					return nil, ErrInvalidInfoHash
				}
				q.infoHashes = append(q.infoHashes, InfoHashFromBytes([]byte(valStr)))
			} else {
				q.params[strings.ToLower(keyStr)] = valStr
			}

			valEnd = 0
			onKey = true
			keyStart = i + 1
		} else if query[i] == '=' {
			onKey = false
			valStart = i + 1
			valEnd = 0
		} else if onKey {
			keyEnd = i
		} else {
			valEnd = i
		}
	}

	return q, nil
}

// String implements Params.
func (qp *QueryParams) String(key string) (string, bool) {
	v, ok := qp.params[key]
	return v, ok
}

// Uint64 parses key as a base-10 unsigned integer.
func (qp *QueryParams) Uint64(key string) (uint64, error) {
	str, exists := qp.params[key]
	if !exists {
		return 0, ErrKeyNotFound
	}
	return strconv.ParseUint(str, 10, 64)
}

// Bool reports whether key is present and set to "1".
func (qp *QueryParams) Bool(key string) bool {
	v, ok := qp.params[key]
	return ok && v == "1"
}

// InfoHashes returns every info_hash value the query carried, in the order
// they appeared (BEP-48 scrape requests repeat the key once per torrent).
func (qp *QueryParams) InfoHashes() []InfoHash {
	return qp.infoHashes
}
