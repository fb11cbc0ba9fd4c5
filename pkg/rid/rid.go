// Package rid defines the record identifier stored as the value in every
// leaf entry of the multi-value tree.
package rid

import "encoding/binary"

// Size is the marshaled byte length of a RID: a 2-byte cluster id
// followed by an 8-byte cluster position.
const Size = 10

// RID identifies a physical record by the cluster (table partition) it
// lives in and its position within that cluster.
type RID struct {
	ClusterID  int16
	ClusterPos int64
}

// New constructs a RID.
func New(clusterID int16, clusterPos int64) RID {
	return RID{ClusterID: clusterID, ClusterPos: clusterPos}
}

// Less orders RIDs by cluster id then cluster position. Used only to make
// overflow-container keys and test output deterministic; the tree itself
// treats a key's RID bag as unordered.
func (r RID) Less(other RID) bool {
	if r.ClusterID != other.ClusterID {
		return r.ClusterID < other.ClusterID
	}
	return r.ClusterPos < other.ClusterPos
}

// Marshal serializes the RID into a fresh Size-byte slice.
func (r RID) Marshal() []byte {
	buf := make([]byte, Size)
	r.PutTo(buf)
	return buf
}

// PutTo serializes the RID into buf, which must have length >= Size.
func (r RID) PutTo(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(r.ClusterID))
	binary.BigEndian.PutUint64(buf[2:10], uint64(r.ClusterPos))
}

// Unmarshal deserializes a RID from the first Size bytes of buf.
func Unmarshal(buf []byte) RID {
	return RID{
		ClusterID:  int16(binary.BigEndian.Uint16(buf[0:2])),
		ClusterPos: int64(binary.BigEndian.Uint64(buf[2:10])),
	}
}
