package index

import (
	"errors"
	"testing"
	"time"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		deletion time.Time
		want     Bucket
	}{
		{
			name:     "start of month",
			prefix:   DefaultBucketPrefix,
			deletion: time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
			want:     "deleted-messages-2019-06-01",
		},
		{
			name:     "mid month",
			prefix:   DefaultBucketPrefix,
			deletion: time.Date(2019, 6, 20, 12, 30, 0, 0, time.UTC),
			want:     "deleted-messages-2019-06-01",
		},
		{
			name:     "custom prefix",
			prefix:   "deletedMessages",
			deletion: time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC),
			want:     "deletedMessages-2019-06-01",
		},
		{
			name:     "non-UTC input normalized",
			prefix:   DefaultBucketPrefix,
			deletion: time.Date(2019, 7, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
			want:     "deleted-messages-2019-06-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketFor(tt.prefix, tt.deletion); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWindowStart(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		deletion := time.Date(2021, 11, 23, 4, 5, 6, 0, time.UTC)
		bucket := BucketFor(DefaultBucketPrefix, deletion)
		start, err := bucket.WindowStart(DefaultBucketPrefix)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := time.Date(2021, 11, 1, 0, 0, 0, 0, time.UTC)
		if !start.Equal(want) {
			t.Fatalf("expected %v, got %v", want, start)
		}
	})

	t.Run("wrong prefix", func(t *testing.T) {
		_, err := Bucket("other-2021-11-01").WindowStart(DefaultBucketPrefix)
		if !errors.Is(err, ErrInvalidBucket) {
			t.Fatalf("expected ErrInvalidBucket, got %v", err)
		}
	})

	t.Run("malformed date", func(t *testing.T) {
		_, err := Bucket("deleted-messages-garbage").WindowStart(DefaultBucketPrefix)
		if !errors.Is(err, ErrInvalidBucket) {
			t.Fatalf("expected ErrInvalidBucket, got %v", err)
		}
	})
}
