package statemgr

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrResolution means the bookie's network identity could not be
// determined at construction.
var ErrResolution = errors.New("failed to resolve bookie identity")

// resolveBookieID determines the host:port identity this bookie
// registers under. An explicitly advertised address is taken as-is;
// otherwise the machine hostname is used and checked for
// resolvability, since an unresolvable identity would make the bookie
// unreachable for the whole cluster.
func resolveBookieID(advertisedAddress string, port int) (string, error) {
	if advertisedAddress != "" {
		return fmt.Sprintf("%s:%d", advertisedAddress, port), nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolution, err)
	}

	if _, err := net.LookupHost(hostname); err != nil {
		return "", fmt.Errorf("%w: hostname %s does not resolve: %v", ErrResolution, hostname, err)
	}

	return fmt.Sprintf("%s:%d", hostname, port), nil
}
