// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// DemuxLogs splits the multiplexed stream returned by ContainerLogs
// into stdout and stderr. Containers without a TTY interleave both
// streams on one connection, each chunk behind an 8-byte header:
// stream type in byte 0, big-endian payload length in bytes 4-7.
//
// Returns nil when the stream ends cleanly and the first error
// otherwise. A stream cut mid-payload is reported as an error since
// log data was lost.
func DemuxLogs(stdout, stderr io.Writer, src io.Reader) error {
	r := bufio.NewReader(src)
	header := make([]byte, 8)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("read log frame header: %w", err)
		}

		size := int64(binary.BigEndian.Uint32(header[4:8]))
		if size == 0 {
			continue
		}

		w := stdout
		if header[0] == 2 {
			w = stderr
		}

		if _, err := io.CopyN(w, r, size); err != nil {
			return fmt.Errorf("copy log frame: %w", err)
		}
	}
}
