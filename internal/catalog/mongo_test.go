package catalog

import (
	"context"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestFatalMongoErrClassification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"client disconnected", mongo.ErrClientDisconnected, true},
		{"wrapped disconnect", fmt.Errorf("flush batch: %w", mongo.ErrClientDisconnected), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"network label", mongo.CommandError{Labels: []string{"NetworkError"}}, true},
		{"duplicate key", mongo.CommandError{Code: duplicateKeyCode}, false},
		{"write failure", mongo.CommandError{Code: 112, Message: "WriteConflict"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isFatalMongoErr(tc.err); got != tc.fatal {
				t.Errorf("isFatalMongoErr(%v) = %v, want %v", tc.err, got, tc.fatal)
			}
		})
	}
}
