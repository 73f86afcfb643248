package llm

import "bytes"

// CleanJSON strips the markdown code fences and surrounding prose that chat
// models wrap around JSON payloads, returning the innermost object or array.
// Input that contains no JSON at all is returned trimmed, so json.Unmarshal
// reports the real error.
func CleanJSON(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return data
	}

	// Fenced block: ```json ... ``` or ``` ... ```
	if bytes.HasPrefix(data, []byte("```")) {
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			data = data[nl+1:]
		}
		if end := bytes.LastIndex(data, []byte("```")); end >= 0 {
			data = data[:end]
		}
		data = bytes.TrimSpace(data)
	}

	// Prose around the payload: cut to the outermost brace/bracket pair.
	objStart := bytes.IndexByte(data, '{')
	arrStart := bytes.IndexByte(data, '[')
	start := objStart
	closer := byte('}')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start = arrStart
		closer = ']'
	}
	if start >= 0 {
		if end := bytes.LastIndexByte(data, closer); end > start {
			return bytes.TrimSpace(data[start : end+1])
		}
	}
	return data
}
