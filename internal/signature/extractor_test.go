package signature

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signedReport = `commit 4f1c2a9d8e7b6a5c4d3e2f1a0b9c8d7e6f5a4b3c
gpg: Signature made Tue 10 Sep 2024 14:03:11 CEST
gpg:                using RSA key 3AA5C34371567BD2
gpg: Good signature from "Alice Example <alice@example.com>" [ultimate]
Author: Alice Example <alice@example.com>
Date:   Tue Sep 10 14:03:11 2024 +0200

    Add keyserver reconciliation

    Co-authored-by: Bob Builder <bob@example.com>
`

const unsignedReport = `commit 9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b
Author: Carol <carol@example.com>
Date:   Mon Sep 9 09:00:00 2024 +0000

    Unsigned change
`

const noPublicKeyReport = `commit 1111111111111111111111111111111111111111
gpg: Signature made Wed 11 Sep 2024 08:00:00 UTC
gpg:                using EDDSA key 5F3B9C0E2D1A4B6C8E7F9A0B1C2D3E4F5A6B7C8D
gpg: Can't check signature: No public key
Author: Dave <Dave@Example.com>
Date:   Wed Sep 11 08:00:00 2024 +0000

    Signed but key unknown locally
`

const legacyReport = `commit 2222222222222222222222222222222222222222
gpg: Signature made Thu 12 Sep 2024 10:00:00 AM UTC using DSA key ID 71567BD2
gpg: Good signature from "Erin <erin@example.com>"
Author: Erin <erin@example.com>
Date:   Thu Sep 12 10:00:00 2024 +0000

    Old gpg
`

const malformedReport = `commit 3333333333333333333333333333333333333333
gpg: Signature made Fri 13 Sep 2024 10:00:00 UTC
gpg: BAD signature
Author: Frank <frank@example.com>
`

func TestParseReport_Signed(t *testing.T) {
	record, err := ParseReport("4f1c2a9", signedReport)
	require.NoError(t, err)

	assert.Equal(t, "4f1c2a9", record.CommitSHA)
	assert.Equal(t, "Tue 10 Sep 2024 14:03:11 CEST", record.SignedAt)
	assert.Equal(t, "RSA", record.KeyAlgorithm)
	assert.Equal(t, "3AA5C34371567BD2", record.KeyID)
	assert.Equal(t, "Alice Example <alice@example.com>", record.Author)
	// Co-author trailer is captured, duplicates collapse
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, record.ObservedEmails)
}

func TestParseReport_NoSignature(t *testing.T) {
	_, err := ParseReport("9a8b7c6", unsignedReport)
	assert.ErrorIs(t, err, ErrNoSignature)
}

func TestParseReport_NoPublicKeyStillParses(t *testing.T) {
	record, err := ParseReport("1111111", noPublicKeyReport)
	require.NoError(t, err)
	assert.Equal(t, "EDDSA", record.KeyAlgorithm)
	assert.Equal(t, "5F3B9C0E2D1A4B6C8E7F9A0B1C2D3E4F5A6B7C8D", record.KeyID)
	assert.Equal(t, []string{"Dave@Example.com"}, record.ObservedEmails)
}

func TestParseReport_LegacySingleLine(t *testing.T) {
	record, err := ParseReport("2222222", legacyReport)
	require.NoError(t, err)
	assert.Equal(t, "DSA", record.KeyAlgorithm)
	assert.Equal(t, "71567BD2", record.KeyID)
	assert.Equal(t, "Thu 12 Sep 2024 10:00:00 AM UTC", record.SignedAt)
}

func TestParseReport_Malformed(t *testing.T) {
	_, err := ParseReport("3333333", malformedReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedReport)

	var malformed *MalformedError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, malformedReport, malformed.Report)
	assert.Equal(t, "3333333", malformed.CommitSHA)
}

// The message is indented by git, so gpg-looking lines in it are text
const injectedMessageReport = `commit 4444444444444444444444444444444444444444
Author: Victim <victim@example.com>
Date:   Sat 14 Sep 2024 10:00:00 +0000

    Innocent change
gpg: Signature made Sat 14 Sep 2024 10:00:00 AM UTC using DSA key ID 71567BD2
    gpg: Signature made Sat 14 Sep 2024 10:00:00 AM UTC using DSA key ID 71567BD2
    gpg:                using RSA key 3AA5C34371567BD2
`

const missingAuthorReport = `commit 5555555555555555555555555555555555555555
gpg: Signature made Sun 15 Sep 2024 10:00:00 UTC
gpg:                using RSA key 3AA5C34371567BD2
Date:   Sun Sep 15 10:00:00 2024 +0000
`

func TestParseReport_SignatureLinesInMessageAreIgnored(t *testing.T) {
	_, err := ParseReport("4444444", injectedMessageReport)
	assert.ErrorIs(t, err, ErrNoSignature)
	assert.NotErrorIs(t, err, ErrMalformedReport)
}

func TestParseReport_MissingAuthorIsMalformed(t *testing.T) {
	_, err := ParseReport("5555555", missingAuthorReport)
	assert.ErrorIs(t, err, ErrMalformedReport)
}

type fakeSource struct {
	reports map[string]string
}

func (f *fakeSource) SignatureReport(_ context.Context, sha string) (string, error) {
	report, ok := f.reports[sha]
	if !ok {
		return "", fmt.Errorf("unknown revision %s", sha)
	}
	return report, nil
}

func TestGPGReportExtractor_Extract(t *testing.T) {
	ex := NewGPGReportExtractor(&fakeSource{reports: map[string]string{
		"signed":   signedReport,
		"unsigned": unsignedReport,
	}})
	ctx := context.Background()

	record, err := ex.Extract(ctx, "signed")
	require.NoError(t, err)
	assert.Equal(t, "3AA5C34371567BD2", record.KeyID)

	_, err = ex.Extract(ctx, "unsigned")
	assert.ErrorIs(t, err, ErrNoSignature)

	_, err = ex.Extract(ctx, "missing")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSignature)
}
