package storage

// maxPagePrealloc caps the capacity reserved for one history page. limit is
// client supplied and may exceed the number of stored rows by far.
const maxPagePrealloc = 100

func pageCapacity(limit int64) int {
	return int(min(max(limit, 0), maxPagePrealloc))
}
