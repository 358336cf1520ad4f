// RSM (Resource Model) format parser for 3D models.
package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/encoding"
)

// RSM format errors.
var (
	ErrInvalidRSMMagic       = errors.New("invalid RSM magic: expected 'GRSM'")
	ErrUnsupportedRSMVersion = errors.New("unsupported RSM version")
	ErrTruncatedRSMData      = errors.New("truncated RSM data")
	ErrInvalidNodeCount      = errors.New("invalid RSM node count")
)

const (
	rsmNameLen      = 40
	rsmMaxNodes     = 10000
	rsmMaxElements  = 100000
	rsmMaxKeys      = 10000
	rsmMaxTextures  = 1000
	rsmMaxVolumeBox = 1000
)

// RSMVersion represents the RSM file version.
type RSMVersion struct {
	Major uint8
	Minor uint8
}

// String returns the version as "Major.Minor".
func (v RSMVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if version is >= major.minor.
func (v RSMVersion) AtLeast(major, minor uint8) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// RSMShadingType represents the shading mode for rendering.
type RSMShadingType int32

const (
	RSMShadingNone   RSMShadingType = 0
	RSMShadingFlat   RSMShadingType = 1
	RSMShadingSmooth RSMShadingType = 2
)

// String returns a human-readable shading type name.
func (s RSMShadingType) String() string {
	switch s {
	case RSMShadingNone:
		return "None"
	case RSMShadingFlat:
		return "Flat"
	case RSMShadingSmooth:
		return "Smooth"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// RSMTexCoord is a texture coordinate with a vertex color (v1.2+).
type RSMTexCoord struct {
	Color [4]uint8
	U, V  float32
}

// RSMFace is a triangle. IDs index into the owning node's arrays.
type RSMFace struct {
	VertexIDs   [3]uint16
	TexCoordIDs [3]uint16
	TextureID   uint16 // index into RSMNode.TextureIDs
	Padding     uint16
	TwoSide     int32
	SmoothGroup int32 // v1.2+
}

// RSMPosKeyframe is a position keyframe (v < 1.5). Frame is in milliseconds.
type RSMPosKeyframe struct {
	Frame    int32
	Position [3]float32
}

// RSMRotKeyframe is a rotation keyframe, quaternion stored as X, Y, Z, W.
type RSMRotKeyframe struct {
	Frame      int32
	Quaternion [4]float32
}

// RSMScaleKeyframe is a scale keyframe (v >= 1.5).
type RSMScaleKeyframe struct {
	Frame int32
	Scale [3]float32
}

// RSMNode is one node of the model hierarchy. Nodes reference their parent
// by name.
type RSMNode struct {
	Name       string
	Parent     string
	TextureIDs []int32 // indices into RSM.Textures

	Matrix   [9]float32 // 3x3 vertex transform, not inherited by children
	Offset   [3]float32 // pivot, not inherited by children
	Position [3]float32
	RotAngle float32 // radians
	RotAxis  [3]float32
	Scale    [3]float32

	Vertices  [][3]float32
	TexCoords []RSMTexCoord
	Faces     []RSMFace

	PosKeys   []RSMPosKeyframe
	RotKeys   []RSMRotKeyframe
	ScaleKeys []RSMScaleKeyframe
}

// HasKeys reports whether the node carries any keyframes.
func (n *RSMNode) HasKeys() bool {
	return len(n.PosKeys) > 0 || len(n.RotKeys) > 0 || len(n.ScaleKeys) > 0
}

// RSMVolumeBox represents a bounding volume box.
type RSMVolumeBox struct {
	Size     [3]float32
	Position [3]float32
	Rotation [3]float32
	Flag     int32 // v1.3+
}

// RSM represents a parsed RSM (Resource Model) file.
type RSM struct {
	Version     RSMVersion
	AnimLength  int32 // milliseconds
	Shading     RSMShadingType
	Alpha       float32
	Textures    []string
	RootNode    string
	Nodes       []RSMNode
	VolumeBoxes []RSMVolumeBox
}

// rsmReader reads little-endian values and remembers the first failure,
// so the parse code can stay linear and check once per section.
type rsmReader struct {
	r   *bytes.Reader
	err error
}

func (rr *rsmReader) read(v any) {
	if rr.err != nil {
		return
	}
	if err := binary.Read(rr.r, binary.LittleEndian, v); err != nil {
		rr.err = ErrTruncatedRSMData
	}
}

func (rr *rsmReader) count(limit int32) int32 {
	var n int32
	rr.read(&n)
	if rr.err != nil {
		return 0
	}
	if n < 0 || n > limit {
		rr.err = pkgerrors.Wrapf(ErrTruncatedRSMData, "element count %d", n)
		return 0
	}
	return n
}

func (rr *rsmReader) name() string {
	buf := make([]byte, rsmNameLen)
	rr.read(buf)
	return encoding.FixedStringToUTF8(buf)
}

func (rr *rsmReader) skip(n int64) {
	if rr.err != nil {
		return
	}
	if int64(rr.r.Len()) < n {
		rr.err = ErrTruncatedRSMData
		return
	}
	rr.r.Seek(n, io.SeekCurrent)
}

// ParseRSM parses RSM data from a byte slice.
func ParseRSM(data []byte) (*RSM, error) {
	if len(data) < 6 {
		return nil, ErrTruncatedRSMData
	}
	if string(data[:4]) != "GRSM" {
		return nil, ErrInvalidRSMMagic
	}

	rr := &rsmReader{r: bytes.NewReader(data[4:])}

	rsm := &RSM{}
	rr.read(&rsm.Version.Major)
	rr.read(&rsm.Version.Minor)

	if rsm.Version.Major < 1 || rsm.Version.Major > 2 {
		return nil, pkgerrors.Wrapf(ErrUnsupportedRSMVersion, "version %s", rsm.Version)
	}

	rr.read(&rsm.AnimLength)
	rr.read(&rsm.Shading)

	rsm.Alpha = 1.0
	if rsm.Version.AtLeast(1, 4) {
		var alpha uint8
		rr.read(&alpha)
		rsm.Alpha = float32(alpha) / 255.0
	}

	// Reserved.
	rr.skip(16)

	textureCount := rr.count(rsmMaxTextures)
	rsm.Textures = make([]string, textureCount)
	for i := range rsm.Textures {
		rsm.Textures[i] = encoding.NormalizePath(rr.name())
	}

	rsm.RootNode = rr.name()

	var nodeCount int32
	rr.read(&nodeCount)
	if rr.err != nil {
		return nil, pkgerrors.Wrap(rr.err, "reading RSM header")
	}
	if nodeCount < 0 || nodeCount > rsmMaxNodes {
		return nil, pkgerrors.Wrapf(ErrInvalidNodeCount, "%d nodes", nodeCount)
	}

	rsm.Nodes = make([]RSMNode, nodeCount)
	for i := range rsm.Nodes {
		parseRSMNode(rr, rsm.Version, &rsm.Nodes[i])
		if rr.err != nil {
			return nil, pkgerrors.Wrapf(rr.err, "parsing node %d", i)
		}
	}

	// Volume boxes are an optional trailer; a short trailer is ignored.
	if rr.r.Len() >= 4 {
		boxes := parseVolumeBoxes(rr, rsm.Version)
		if rr.err == nil {
			rsm.VolumeBoxes = boxes
		}
	}

	return rsm, nil
}

func parseRSMNode(rr *rsmReader, version RSMVersion, node *RSMNode) {
	node.Name = rr.name()
	node.Parent = rr.name()

	node.TextureIDs = make([]int32, rr.count(rsmMaxTextures))
	for i := range node.TextureIDs {
		rr.read(&node.TextureIDs[i])
	}

	rr.read(&node.Matrix)
	rr.read(&node.Offset)
	rr.read(&node.Position)
	rr.read(&node.RotAngle)
	rr.read(&node.RotAxis)
	rr.read(&node.Scale)

	node.Vertices = make([][3]float32, rr.count(rsmMaxElements))
	for i := range node.Vertices {
		rr.read(&node.Vertices[i])
	}

	node.TexCoords = make([]RSMTexCoord, rr.count(rsmMaxElements))
	for i := range node.TexCoords {
		tc := &node.TexCoords[i]
		if version.AtLeast(1, 2) {
			rr.read(&tc.Color)
		} else {
			tc.Color = [4]uint8{255, 255, 255, 255}
		}
		rr.read(&tc.U)
		rr.read(&tc.V)
	}

	node.Faces = make([]RSMFace, rr.count(rsmMaxElements))
	for i := range node.Faces {
		face := &node.Faces[i]
		rr.read(&face.VertexIDs)
		rr.read(&face.TexCoordIDs)
		rr.read(&face.TextureID)
		rr.read(&face.Padding)
		rr.read(&face.TwoSide)
		if version.AtLeast(1, 2) {
			rr.read(&face.SmoothGroup)
		}
	}

	if !version.AtLeast(1, 5) {
		node.PosKeys = make([]RSMPosKeyframe, rr.count(rsmMaxKeys))
		for i := range node.PosKeys {
			rr.read(&node.PosKeys[i].Frame)
			rr.read(&node.PosKeys[i].Position)
		}
	}

	node.RotKeys = make([]RSMRotKeyframe, rr.count(rsmMaxKeys))
	for i := range node.RotKeys {
		rr.read(&node.RotKeys[i].Frame)
		rr.read(&node.RotKeys[i].Quaternion)
	}

	if version.AtLeast(1, 5) {
		node.ScaleKeys = make([]RSMScaleKeyframe, rr.count(rsmMaxKeys))
		for i := range node.ScaleKeys {
			rr.read(&node.ScaleKeys[i].Frame)
			rr.read(&node.ScaleKeys[i].Scale)
		}
	}
}

func parseVolumeBoxes(rr *rsmReader, version RSMVersion) []RSMVolumeBox {
	boxes := make([]RSMVolumeBox, rr.count(rsmMaxVolumeBox))
	for i := range boxes {
		box := &boxes[i]
		rr.read(&box.Size)
		rr.read(&box.Position)
		rr.read(&box.Rotation)
		if version.AtLeast(1, 3) {
			rr.read(&box.Flag)
		}
	}
	return boxes
}

// NodeByName returns a node by its name, or nil if not found.
func (rsm *RSM) NodeByName(name string) *RSMNode {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return &rsm.Nodes[i]
		}
	}
	return nil
}

// NodeIndex returns the index of the named node, or -1.
func (rsm *RSM) NodeIndex(name string) int {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].Name == name {
			return i
		}
	}
	return -1
}

// TotalFaceCount returns the total number of faces across all nodes.
func (rsm *RSM) TotalFaceCount() int {
	total := 0
	for _, node := range rsm.Nodes {
		total += len(node.Faces)
	}
	return total
}

// HasAnimation returns true if the model has any animation keyframes.
func (rsm *RSM) HasAnimation() bool {
	for i := range rsm.Nodes {
		if rsm.Nodes[i].HasKeys() {
			return true
		}
	}
	return false
}
