package mthttp

import (
	"errors"
	"fmt"

	"github.com/tanq16/mtdown/internal/utils"
)

var ErrInvalidPlan = errors.New("invalid segment plan")

// Plan splits [0, contentLength-1] into threads contiguous segments of
// contentLength/threads bytes each. The last segment absorbs the remainder
// and always ends on the final byte of the resource.
func Plan(contentLength int64, threads int) ([]utils.Segment, error) {
	if contentLength <= 0 {
		return nil, fmt.Errorf("%w: content length %d", ErrInvalidPlan, contentLength)
	}
	if threads < 1 || int64(threads) > contentLength {
		return nil, fmt.Errorf("%w: %d threads for %d bytes", ErrInvalidPlan, threads, contentLength)
	}
	size := contentLength / int64(threads)
	segments := make([]utils.Segment, threads)
	for i := range threads {
		start := int64(i) * size
		end := start + size - 1
		if i == threads-1 {
			end = contentLength - 1
		}
		segments[i] = utils.Segment{Index: i, Start: start, End: end}
	}
	return segments, nil
}
