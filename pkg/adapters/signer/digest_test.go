package signer_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/sealgate/pkg/adapters/signer"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/aretw0/sealgate/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = domain.AuthenticatedIdentity{ServiceUUID: "svc", ClientName: "client"}

func TestDigest_PrepareEveryVariant(t *testing.T) {
	d, err := signer.NewDigest("")
	require.NoError(t, err)

	req := ports.SigningRequest{SigningCertificate: []byte("cert"), SignatureProfile: "LT"}
	for _, sess := range ports.ContractSessions(owner, time.Now()) {
		dts, err := d.PrepareDataToSign(context.Background(), sess, req)
		require.NoError(t, err, sess.Kind())
		assert.Len(t, dts.Data, 32)
		assert.Equal(t, signer.SHA256, dts.DigestAlgorithm)
		assert.NotEmpty(t, dts.DataFilesHash)
	}
}

func TestDigest_Algorithms(t *testing.T) {
	sess := ports.ContractSessions(owner, time.Now())[2]
	for alg, size := range map[string]int{signer.SHA256: 32, signer.SHA384: 48, signer.SHA512: 64} {
		d, err := signer.NewDigest(alg)
		require.NoError(t, err)
		dts, err := d.PrepareDataToSign(context.Background(), sess, ports.SigningRequest{})
		require.NoError(t, err)
		assert.Len(t, dts.Data, size, alg)
	}

	_, err := signer.NewDigest("MD5")
	assert.Error(t, err)
}

func TestDigest_DependsOnCertificate(t *testing.T) {
	d, _ := signer.NewDigest(signer.SHA256)
	sess := ports.ContractSessions(owner, time.Now())[0]

	a, err := d.PrepareDataToSign(context.Background(), sess, ports.SigningRequest{SigningCertificate: []byte("a")})
	require.NoError(t, err)
	b, err := d.PrepareDataToSign(context.Background(), sess, ports.SigningRequest{SigningCertificate: []byte("b")})
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
	assert.Equal(t, a.DataFilesHash, b.DataFilesHash)
}

func TestDigest_AttachSignature(t *testing.T) {
	d, _ := signer.NewDigest(signer.SHA256)
	sess := ports.ContractSessions(owner, time.Now())[1]

	dts, err := d.PrepareDataToSign(context.Background(), sess, ports.SigningRequest{SigningCertificate: []byte("c")})
	require.NoError(t, err)
	pending := domain.SignatureSession{DataFilesHash: dts.DataFilesHash, SigningType: domain.SigningRemote, SignatureProfile: "LT"}

	rec, err := d.AttachSignature(context.Background(), sess, pending, []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, []byte("sig"), rec.Value)
	assert.Equal(t, "LT", rec.SignatureProfile)

	_, err = d.AttachSignature(context.Background(), sess, pending, nil)
	var invalid *domain.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	pending.DataFilesHash = "stale"
	_, err = d.AttachSignature(context.Background(), sess, pending, []byte("sig"))
	assert.ErrorAs(t, err, &invalid)
}
