package transfer

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/lanxfer/lanxfer/internal/config"
)

// QuickHash fingerprints a file as MD5(ascii(filesize) ‖ first 64 KiB ‖
// last 64 KiB), omitting the tail read when the file is no larger than
// the sample size. It is not collision-safe; it exists only so both
// sides of a folder transfer can agree a destination already matches
// its source without hashing the whole file.
func QuickHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return quickHash(f, info.Size())
}

func quickHash(r io.ReadSeeker, size int64) (string, error) {
	h := md5.New()
	io.WriteString(h, strconv.FormatInt(size, 10))

	sample := int64(config.QuickHashSampleSize)

	head := sample
	if size < head {
		head = size
	}
	if _, err := io.CopyN(h, r, head); err != nil && err != io.EOF {
		return "", err
	}

	if size > sample {
		tail := sample
		if size-sample < 0 {
			tail = size
		}
		if _, err := r.Seek(size-tail, io.SeekStart); err != nil {
			return "", err
		}
		if _, err := io.CopyN(h, r, tail); err != nil && err != io.EOF {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
