package extractor

// chunkText slices text into TextChunks of approximately targetBytes each,
// preferring to break at the last sentence-ending punctuation or newline
// within the window, falling back to the last space, and finally a hard
// cut when neither is available (spec.md §4.2). The accumulate-until-
// budget-exceeded-then-flush shape mirrors the teacher's markdown chunker
// (internal/chunk/markdown_chunker.go's splitLargeSection), adapted from a
// token/paragraph budget to a byte/natural-boundary one.
func chunkText(text string, targetBytes int) []TextChunk {
	if targetBytes <= 0 {
		targetBytes = 2048
	}
	if len(text) == 0 {
		return nil
	}

	var chunks []TextChunk
	start := 0
	for start < len(text) {
		end := start + targetBytes
		if end >= len(text) {
			end = len(text)
		} else {
			end = boundaryBefore(text, start, end)
		}
		if end <= start {
			end = start + targetBytes
			if end > len(text) {
				end = len(text)
			}
		}
		chunks = append(chunks, TextChunk{
			Start: uint64(start),
			End:   uint64(end),
			Text:  text[start:end],
		})
		start = end
	}
	return chunks
}

// boundaryBefore finds the best split point in text[start:window], scanning
// backward from window for the last of ". ! ? \n", else the last space,
// else returning window unchanged (hard cut).
func boundaryBefore(text string, start, window int) int {
	for i := window - 1; i > start; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	for i := window - 1; i > start; i-- {
		if text[i] == ' ' {
			return i + 1
		}
	}
	return window
}
