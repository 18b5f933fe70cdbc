package adapter

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known Solana program addresses.
var (
	solSystemProgram = mustSolPubKey("11111111111111111111111111111111")
	solTokenProgram  = mustSolPubKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	solATAProgram    = mustSolPubKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// solPubKey is a 32-byte Solana account address.
type solPubKey [32]byte

func solPubKeyFromBase58(s string) (solPubKey, error) {
	var pk solPubKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != 32 {
		return pk, fmt.Errorf("%w: address is %d bytes, want 32", ErrInvalidAddress, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

func mustSolPubKey(s string) solPubKey {
	pk, err := solPubKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p solPubKey) String() string {
	return base58.Encode(p[:])
}

// solAccountMeta describes how an instruction touches one account.
type solAccountMeta struct {
	PubKey     solPubKey
	IsSigner   bool
	IsWritable bool
}

// solInstruction is one program invocation inside a transaction.
type solInstruction struct {
	ProgramID solPubKey
	Accounts  []solAccountMeta
	Data      []byte
}

// solSystemTransfer moves lamports between system accounts.
func solSystemTransfer(from, to solPubKey, lamports uint64) solInstruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 2) // SystemProgram::Transfer
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return solInstruction{
		ProgramID: solSystemProgram,
		Accounts: []solAccountMeta{
			{PubKey: from, IsSigner: true, IsWritable: true},
			{PubKey: to, IsWritable: true},
		},
		Data: data,
	}
}

// solSPLTransfer moves SPL tokens between token accounts.
func solSPLTransfer(sourceATA, destATA, owner solPubKey, amount uint64) solInstruction {
	data := make([]byte, 9)
	data[0] = 3 // TokenProgram::Transfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return solInstruction{
		ProgramID: solTokenProgram,
		Accounts: []solAccountMeta{
			{PubKey: sourceATA, IsWritable: true},
			{PubKey: destATA, IsWritable: true},
			{PubKey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// solCreateATA creates the associated token account for (owner, mint), with
// payer funding the rent.
func solCreateATA(payer, ata, owner, mint solPubKey) solInstruction {
	return solInstruction{
		ProgramID: solATAProgram,
		Accounts: []solAccountMeta{
			{PubKey: payer, IsSigner: true, IsWritable: true},
			{PubKey: ata, IsWritable: true},
			{PubKey: owner},
			{PubKey: mint},
			{PubKey: solSystemProgram},
			{PubKey: solTokenProgram},
		},
	}
}

// deriveATA returns the associated token account address for (owner, mint).
// It searches bump seeds from 255 down for the first candidate that is not a
// valid curve point, per the program-derived-address scheme.
func deriveATA(owner, mint solPubKey) (solPubKey, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		h.Write(owner[:])
		h.Write(solTokenProgram[:])
		h.Write(mint[:])
		h.Write([]byte{byte(bump)})
		h.Write(solATAProgram[:])
		h.Write([]byte("ProgramDerivedAddress"))

		var candidate solPubKey
		copy(candidate[:], h.Sum(nil))
		if _, err := new(edwards25519.Point).SetBytes(candidate[:]); err != nil {
			return candidate, nil
		}
	}
	return solPubKey{}, fmt.Errorf("%w: no off-curve bump for token account", ErrDerivation)
}

// appendCompactU16 appends a Solana compact-u16 length prefix.
func appendCompactU16(b []byte, v uint16) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}

// buildSolTransaction serializes and signs a legacy-format transaction with a
// single fee-paying signer. It returns the wire bytes and the base58
// signature that identifies the transaction.
func buildSolTransaction(signer ed25519.PrivateKey, feePayer solPubKey, instrs []solInstruction, blockhash [32]byte) ([]byte, string, error) {
	// Account table: fee payer first, then writables, read-onlys, programs.
	type accountFlags struct {
		signer   bool
		writable bool
	}
	flags := map[solPubKey]*accountFlags{
		feePayer: {signer: true, writable: true},
	}
	order := []solPubKey{feePayer}
	touch := func(pk solPubKey, isSigner, isWritable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &accountFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || isSigner
		f.writable = f.writable || isWritable
	}
	for _, ix := range instrs {
		for _, acct := range ix.Accounts {
			touch(acct.PubKey, acct.IsSigner, acct.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}
	rank := func(pk solPubKey) int {
		f := flags[pk]
		switch {
		case pk == feePayer:
			return 0
		case f.signer && f.writable:
			return 1
		case f.signer:
			return 2
		case f.writable:
			return 3
		default:
			return 4
		}
	}
	// Stable insertion sort keeps first-touch order within each class.
	sorted := make([]solPubKey, 0, len(order))
	for _, pk := range order {
		i := len(sorted)
		for i > 0 && rank(sorted[i-1]) > rank(pk) {
			i--
		}
		sorted = append(sorted, solPubKey{})
		copy(sorted[i+1:], sorted[i:])
		sorted[i] = pk
	}

	index := make(map[solPubKey]uint8, len(sorted))
	var numSigners, numReadonlySigned, numReadonlyUnsigned uint8
	for i, pk := range sorted {
		index[pk] = uint8(i)
		f := flags[pk]
		if f.signer {
			numSigners++
			if !f.writable {
				numReadonlySigned++
			}
		} else if !f.writable {
			numReadonlyUnsigned++
		}
	}
	if numSigners != 1 {
		return nil, "", fmt.Errorf("%w: expected single signer, have %d", ErrSigning, numSigners)
	}

	msg := []byte{numSigners, numReadonlySigned, numReadonlyUnsigned}
	msg = appendCompactU16(msg, uint16(len(sorted)))
	for _, pk := range sorted {
		msg = append(msg, pk[:]...)
	}
	msg = append(msg, blockhash[:]...)
	msg = appendCompactU16(msg, uint16(len(instrs)))
	for _, ix := range instrs {
		msg = append(msg, index[ix.ProgramID])
		msg = appendCompactU16(msg, uint16(len(ix.Accounts)))
		for _, acct := range ix.Accounts {
			msg = append(msg, index[acct.PubKey])
		}
		msg = appendCompactU16(msg, uint16(len(ix.Data)))
		msg = append(msg, ix.Data...)
	}

	sig := ed25519.Sign(signer, msg)

	tx := appendCompactU16(nil, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)
	return tx, base58.Encode(sig), nil
}
