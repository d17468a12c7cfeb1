package rtsp

import "strconv"

// CSeq returns the request's CSeq header as an integer, or (0, false) if
// absent or unparsable. The control-plane session correlates responses
// to their request solely by this value.
func (r *Request) CSeq() (int, bool) {
	return parseCSeq(r.Header)
}

// CSeq returns the response's CSeq header as an integer.
func (r *Response) CSeq() (int, bool) {
	return parseCSeq(r.Header)
}

func parseCSeq(h Header) (int, bool) {
	v := h.Get("CSeq")
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetCSeq assigns the CSeq header.
func (r *Request) SetCSeq(n int) {
	if r.Header == nil {
		r.Header = Header{}
	}
	r.Header.Set("CSeq", strconv.Itoa(n))
}

// SetCSeq assigns the CSeq header.
func (r *Response) SetCSeq(n int) {
	if r.Header == nil {
		r.Header = Header{}
	}
	r.Header.Set("CSeq", strconv.Itoa(n))
}
