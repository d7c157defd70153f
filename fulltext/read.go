package fulltext

import (
	"bufio"
	"io"
	"os"
)

// readLine reads a complete record from offset until the next newline,
// excluding the trailing newline character.
func readLine(f *os.File, offset int64) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	remaining := info.Size() - offset
	if remaining <= 0 {
		return nil, io.EOF
	}

	section := io.NewSectionReader(f, offset, remaining)
	reader := bufio.NewReader(section)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	return data, nil
}

func fileSize(f *os.File) int64 {
	info, _ := f.Stat()
	return info.Size()
}
