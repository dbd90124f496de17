package store

// entryOverhead 每个条目的固定开销估算（字节）
const entryOverhead = 64

// EstimateSize 估算值的大小（简单实现）
func EstimateSize(value interface{}) int64 {
	switch v := value.(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		return entryOverhead
	}
}

// EstimateEntrySize 估算一个键值条目占用的内存，包含键长与固定开销。
func EstimateEntrySize(key string, valueSize int64) int64 {
	return int64(len(key)) + entryOverhead + valueSize
}
