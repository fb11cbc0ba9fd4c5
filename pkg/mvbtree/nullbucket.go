package mvbtree

import (
	"encoding/binary"

	"mvbtree/pkg/pager"
	"mvbtree/pkg/rid"
)

// NullBucket is the single page of the secondary `<name>.nul` file. It
// holds exactly one logical entry - the bag of RIDs for the null key -
// laid out as a fixed-offset record rather than a slotted array, since
// there is never more than one entry.
const (
	nbMIDOffset          = 0
	nbEntriesCountOffset = nbMIDOffset + 8
	nbInlineCountOffset  = nbEntriesCountOffset + 8
	nbInlineArrayOffset  = nbInlineCountOffset + 1
)

type NullBucket struct {
	page *pager.Page
}

// initNullBucket formats the null-bucket page for a freshly created
// tree, minting its one-and-only m-id.
func initNullBucket(page *pager.Page, mID int64) *NullBucket {
	blank := make([]byte, pager.Pagesize)
	page.Update(blank, 0, pager.Pagesize)
	nb := &NullBucket{page: page}
	nb.setMID(mID)
	nb.setEntriesCount(0)
	nb.setInlineCount(0)
	return nb
}

func loadNullBucket(page *pager.Page) *NullBucket {
	return &NullBucket{page: page}
}

func (nb *NullBucket) MID() int64 {
	return int64(binary.BigEndian.Uint64(nb.page.GetData()[nbMIDOffset : nbMIDOffset+8]))
}

func (nb *NullBucket) setMID(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	nb.page.Update(buf[:], nbMIDOffset, 8)
}

func (nb *NullBucket) EntriesCount() int64 {
	return int64(binary.BigEndian.Uint64(nb.page.GetData()[nbEntriesCountOffset : nbEntriesCountOffset+8]))
}

func (nb *NullBucket) setEntriesCount(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	nb.page.Update(buf[:], nbEntriesCountOffset, 8)
}

func (nb *NullBucket) inlineCount() int {
	return int(nb.page.GetData()[nbInlineCountOffset])
}

func (nb *NullBucket) setInlineCount(n int) {
	nb.page.Update([]byte{byte(n)}, nbInlineCountOffset, 1)
}

// Inline returns the bag's on-page RIDs.
func (nb *NullBucket) Inline() []rid.RID {
	n := nb.inlineCount()
	out := make([]rid.RID, n)
	data := nb.page.GetData()
	for i := 0; i < n; i++ {
		out[i] = rid.Unmarshal(data[nbInlineArrayOffset+i*rid.Size:])
	}
	return out
}

// HasOverflow reports whether the null entry owns RIDs beyond its
// inline list.
func (nb *NullBucket) HasOverflow() bool {
	return nb.EntriesCount() > int64(nb.inlineCount())
}

// AppendInline appends r to the inline list if there's room. Returns
// false if the inline cap has been reached, in which case the caller
// must validated-put into the overflow container keyed by nb.MID().
func (nb *NullBucket) AppendInline(r rid.RID) bool {
	n := nb.inlineCount()
	if n >= maxInlineRIDs {
		return false
	}
	r.PutTo(nb.page.GetData()[nbInlineArrayOffset+n*rid.Size:])
	nb.page.SetDirty(true)
	nb.setInlineCount(n + 1)
	nb.setEntriesCount(nb.EntriesCount() + 1)
	return true
}

// BumpEntriesCount records a successful overflow validated-put.
func (nb *NullBucket) BumpEntriesCount() {
	nb.setEntriesCount(nb.EntriesCount() + 1)
}

// DecrementEntriesCount records a successful overflow removal.
func (nb *NullBucket) DecrementEntriesCount() {
	nb.setEntriesCount(nb.EntriesCount() - 1)
}

// RemoveInline removes r from the inline list if present.
func (nb *NullBucket) RemoveInline(r rid.RID) bool {
	n := nb.inlineCount()
	data := nb.page.GetData()
	idx := -1
	for i := 0; i < n; i++ {
		if rid.Unmarshal(data[nbInlineArrayOffset+i*rid.Size:]) == r {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	for i := idx; i < n-1; i++ {
		copy(data[nbInlineArrayOffset+i*rid.Size:nbInlineArrayOffset+(i+1)*rid.Size],
			data[nbInlineArrayOffset+(i+1)*rid.Size:nbInlineArrayOffset+(i+2)*rid.Size])
	}
	nb.page.SetDirty(true)
	nb.setInlineCount(n - 1)
	nb.setEntriesCount(nb.EntriesCount() - 1)
	return true
}
