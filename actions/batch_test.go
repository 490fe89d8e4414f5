package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/pdfbot-go/types"
)

func TestMergeImagesAndDocumentsInOrder(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.addDoc(t, "a.jpg", "imageA")
	b := f.addDoc(t, "b.pdf", "B1", "B2", "B3")
	c := f.addDoc(t, "c.png", "imageC")

	res, err := f.batch.Run(context.Background(), f.sess, types.BatchMerge, "")
	require.NoError(t, err)

	files := f.sess.Files()
	require.Len(t, files, 1)
	merged := files[0]
	assert.Equal(t, "merged.pdf", merged.Name)
	assert.Equal(t, types.KindDocument, merged.Kind)

	pages := pagesOf(t, merged)
	assert.Len(t, pages, 1+3+1)
	assert.Equal(t, []string{"imageA", "B1", "B2", "B3", "imageC"}, pages)
	assert.Contains(t, res.Message, "5 pages")

	for _, old := range []*types.FileRecord{a, b, c} {
		assert.NoFileExists(t, old.Path)
	}
}

func TestMergeRejectsText(t *testing.T) {
	f := newFixture(t, Options{})
	f.addDoc(t, "a.pdf", "A1")
	f.addDoc(t, "notes.txt", "hello")
	_, err := f.batch.MergeAll(context.Background(), f.sess)
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))
	assert.Len(t, f.sess.Files(), 2)
}

func TestEncryptAll(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.addDoc(t, "a.pdf", "A1")
	img := f.addDoc(t, "b.jpg", "IMG")
	c := f.addDoc(t, "c.pdf", "C1", "C2")
	imgPath := img.Path

	res, err := f.batch.EncryptAll(context.Background(), f.sess, "pw")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "encrypted_a.pdf", res.Records[0].Name)
	assert.Equal(t, "encrypted_c.pdf", res.Records[1].Name)

	for _, rec := range []*types.FileRecord{a, c} {
		_, pw, err := readDoc(rec.Path)
		require.NoError(t, err)
		assert.Equal(t, "pw", pw)
	}
	assert.Equal(t, imgPath, img.Path, "images are skipped")

	_, err = f.batch.EncryptAll(context.Background(), f.sess, "")
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))
}

func TestBatchFailureAbortsWholeBatch(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.addDoc(t, "a.pdf", "A1")
	b := f.addDoc(t, "b.pdf", "B1")
	before := []string{a.Path, b.Path}

	// every upload lives under the scratch dir, so failing on it fails every task
	f.lib.failOn = f.sess.Dir()
	_, err := f.batch.Run(context.Background(), f.sess, types.BatchEncrypt, "pw")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindTransformation, types.KindOf(err))

	assert.Equal(t, before, []string{a.Path, b.Path})
	assert.Empty(t, a.History)
	assert.Empty(t, b.History)
}

func TestCompressAllAndOCRAll(t *testing.T) {
	f := newFixture(t, Options{})
	f.addDoc(t, "a.pdf", "A1", "A2")
	f.addDoc(t, "b.jpg", "IMG")

	res, err := f.batch.CompressAll(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	res, err = f.batch.OCRAll(context.Background(), f.sess)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	files := f.sess.Files()
	assert.Equal(t, []string{"ocr:A1", "ocr:A2"}, pagesOf(t, files[0]))
	assert.Equal(t, types.KindText, files[1].Kind)
}

func TestBatchUnknownAction(t *testing.T) {
	f := newFixture(t, Options{})
	f.addDoc(t, "a.pdf", "A1")
	_, err := f.batch.Run(context.Background(), f.sess, "batch_shred", "")
	assert.ErrorIs(t, err, types.ErrUnknownAction)
}

func TestBatchNoFiles(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.batch.CompressAll(context.Background(), f.sess)
	assert.ErrorIs(t, err, types.ErrNoFiles)
	_, err = f.batch.MergeAll(context.Background(), f.sess)
	assert.ErrorIs(t, err, types.ErrNoFiles)
}
