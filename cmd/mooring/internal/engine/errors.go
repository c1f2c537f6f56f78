// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"strings"

	"github.com/containerd/errdefs"
)

// The daemon types some failures (404, 401, 409) but reports registry
// and port problems as untyped 500s whose only distinguishing feature
// is the message. These fragments are matched case-insensitively.
var (
	imageNotFoundFragments = []string{
		"manifest unknown",
		"repository does not exist",
		"name unknown",
	}

	unauthorizedFragments = []string{
		"unauthorized",
		"authentication required",
		"no basic auth credentials",
		"access denied",
	}

	registryUnreachableFragments = []string{
		"connection refused",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"registry is unavailable",
	}

	daemonUnreachableFragments = []string{
		"cannot connect to the docker daemon",
		"error during connect",
		"is the docker daemon running",
	}

	portConflictFragments = []string{
		"port is already allocated",
		"address already in use",
	}

	nameConflictFragments = []string{
		"is already in use by container",
	}
)

// IsNotFound reports whether err means the container, image, volume,
// or network does not exist in the engine.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// IsImageNotFound reports whether err means the registry has no image
// for the requested reference.
func IsImageNotFound(err error) bool {
	return errdefs.IsNotFound(err) || matchesAny(err, imageNotFoundFragments)
}

// IsUnauthorized reports whether err is a registry authentication or
// authorization failure.
func IsUnauthorized(err error) bool {
	return errdefs.IsUnauthorized(err) || matchesAny(err, unauthorizedFragments)
}

// IsRegistryUnreachable reports whether err means the registry could
// not be reached at all. Context cancellation is deliberately not
// treated as unreachable.
func IsRegistryUnreachable(err error) bool {
	return errdefs.IsUnavailable(err) || matchesAny(err, registryUnreachableFragments)
}

// IsDaemonUnreachable reports whether err means the local engine
// daemon itself is not answering.
func IsDaemonUnreachable(err error) bool {
	return matchesAny(err, daemonUnreachableFragments)
}

// IsPortConflict reports whether err is a host port collision raised
// while creating or starting a container.
func IsPortConflict(err error) bool {
	return matchesAny(err, portConflictFragments)
}

// IsNameConflict reports whether err means the container name is
// taken by an existing container.
func IsNameConflict(err error) bool {
	return errdefs.IsConflict(err) || matchesAny(err, nameConflictFragments)
}

func matchesAny(err error, fragments []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}
