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

package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/output"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
)

// Writer encodes frames with OpenCV's VideoWriter.
type Writer struct {
	vw     *gocv.VideoWriter
	spec   recorder.StreamSpec
	colour gocv.Mat
}

// OpenWriter is an output.WriterOpener.
func OpenWriter(path string, spec recorder.StreamSpec) (output.VideoWriter, error) {
	vw, err := gocv.VideoWriterFile(path, spec.Codec, float64(spec.FPS), spec.Width, spec.Height, true)
	if err != nil {
		return nil, err
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("could not open %s with codec %q", path, spec.Codec)
	}
	return &Writer{vw: vw, spec: spec, colour: gocv.NewMat()}, nil
}

func (w *Writer) Write(f *frame.Frame) error {
	if f.Width != w.spec.Width || f.Height != w.spec.Height {
		return fmt.Errorf("frame is %dx%d, recording is %dx%d", f.Width, f.Height, w.spec.Width, w.spec.Height)
	}
	mat, err := toMat(f)
	if err != nil {
		return err
	}
	defer mat.Close()

	switch f.Channels {
	case 1:
		gocv.CvtColor(mat, &w.colour, gocv.ColorGrayToBGR)
		return w.vw.Write(w.colour)
	case 4:
		gocv.CvtColor(mat, &w.colour, gocv.ColorBGRAToBGR)
		return w.vw.Write(w.colour)
	}
	return w.vw.Write(mat)
}

func (w *Writer) Close() error {
	w.colour.Close()
	return w.vw.Close()
}

func toMat(f *frame.Frame) (gocv.Mat, error) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.Mat{}, fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
}
