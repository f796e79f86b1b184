package index

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBucketPrefix is the prefix used for bucket names unless the service
// is configured otherwise.
const DefaultBucketPrefix = "deleted-messages"

// bucketDateLayout renders the window start as an ISO calendar date.
const bucketDateLayout = "2006-01-02"

// Bucket is a time-partition label of the form <prefix>-YYYY-MM-DD where the
// date is the start of the retention window. All three indices partition by
// bucket, so expired data can be dropped a whole partition at a time.
type Bucket string

func (b Bucket) String() string { return string(b) }

// BucketFor computes the bucket a message deleted at deletionDate belongs to.
// Windows are calendar months in UTC: every deletion date inside a month maps
// to <prefix>-YYYY-MM-01.
func BucketFor(prefix string, deletionDate time.Time) Bucket {
	start := windowStart(deletionDate)
	return Bucket(fmt.Sprintf("%s-%s", prefix, start.Format(bucketDateLayout)))
}

// windowStart truncates t to the start of its retention window.
func windowStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// WindowStart parses the window start date out of the bucket name.
// The prefix must match the one the bucket was generated with.
// Returns ErrInvalidBucket when the name does not follow the
// <prefix>-YYYY-MM-DD format.
func (b Bucket) WindowStart(prefix string) (time.Time, error) {
	name := string(b)
	want := prefix + "-"
	if !strings.HasPrefix(name, want) {
		return time.Time{}, fmt.Errorf("%w: %q does not start with %q", ErrInvalidBucket, name, want)
	}
	start, err := time.ParseInLocation(bucketDateLayout, name[len(want):], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidBucket, name, err)
	}
	return start, nil
}
