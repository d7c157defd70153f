package fulltext

// appendRaw writes a line to the end of the file, marking the header
// dirty on first write of the session.
func (e *Engine) appendRaw(line []byte) (int64, error) {
	if e.header.Dirty == 0 {
		e.header.Dirty = 1
		setDirty(e.writer, true)
	}

	offset := e.tail
	data := append(line, '\n')
	if _, err := e.writer.WriteAt(data, offset); err != nil {
		return 0, err
	}
	e.tail += int64(len(data))
	return offset, nil
}

// appendRecord serialises and appends a single record line.
func (e *Engine) appendRecord(r *docRecord) (int64, error) {
	data, err := r.encode()
	if err != nil {
		return 0, err
	}
	return e.appendRaw(data)
}
