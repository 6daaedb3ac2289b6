package client

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// BuildClientID builds the id identifying one client instance to the
// brokers, unique across restarts of the same process
func BuildClientID(group string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s@%d@%s@%s", hostname, os.Getpid(), group, suffix)
}
