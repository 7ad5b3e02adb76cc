package dealtypes

// BlobPageNameLen is the fixed width of a page name as stored inside a
// DealInfo record, grounded on MEMPAGE_NAME_MAX_LEN (src/shared_memory.hpp).
// DealInfo embeds the name as a byte array instead of a string so the
// struct stays a fixed-layout POD type: internal/shmpage reinterprets raw
// mmap'd bytes as a []DealInfo via unsafe.Slice, which requires every field
// to be free of pointers, strings, and slices.
const BlobPageNameLen = 20

// Locator is the only way to reference a blob in the DealData pool,
// grounded on spec.md §3's Locator and on the original's
// ElementPointer{page_name, index, size}. Locators are freely copyable;
// the blob is alive as long as its page is not unlinked.
type Locator struct {
	PageName [BlobPageNameLen]byte
	Index    uint32
	Size     uint32
}

// NewLocator packs a page name into a Locator's fixed-width field,
// truncating names longer than BlobPageNameLen (table-generated page names
// never approach that length).
func NewLocator(pageName string, index, size uint32) Locator {
	var l Locator
	n := copy(l.PageName[:], pageName)
	_ = n
	l.Index = index
	l.Size = size
	return l
}

// Page decodes the locator's page name back to a string.
func (l Locator) Page() string {
	i := 0
	for i < len(l.PageName) && l.PageName[i] != 0 {
		i++
	}
	return string(l.PageName[:i])
}
