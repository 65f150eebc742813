// motion-recorder - record video footage of motion seen by a network camera
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package output

import (
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

func metadataPath(recording string) string {
	return strings.TrimSuffix(recording, filepath.Ext(recording)) + metadataExt
}

func writeMetadata(path string, meta *Metadata) error {
	buf, err := yaml.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}

// ReadMetadata loads the metadata written alongside a recording.
func ReadMetadata(recording string) (*Metadata, error) {
	buf, err := os.ReadFile(metadataPath(recording))
	if err != nil {
		return nil, err
	}
	meta := new(Metadata)
	if err := yaml.Unmarshal(buf, meta); err != nil {
		return nil, err
	}
	return meta, nil
}
