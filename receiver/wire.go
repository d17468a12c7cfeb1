package receiver

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/pkg/codec"
	"github.com/bluenviron/airplay2/pkg/plist"
	"github.com/bluenviron/airplay2/pkg/sdp"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

func base64DecodeStd(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// base64DecodeNoPad decodes the unpadded base64 spec.md 4.G's rsaaeskey
// attribute carries.
func base64DecodeNoPad(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(s)
}

func tlv8Encode(c tlv8.Container) []byte {
	order := make([]tlv8.Type, 0, len(c))
	for t := range c {
		order = append(order, t)
	}
	sortTypes(order)
	return tlv8.Encode(order, c)
}

func tlv8Decode(data []byte) (tlv8.Container, error) {
	return tlv8.Decode(data)
}

func sortTypes(order []tlv8.Type) {
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && order[j-1] > order[j]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
}

// parseClientTransportPorts extracts the controller-side (client_port,
// control_port, timing_port) UDP ports a sender's SETUP Transport header
// names, the mirror of sender's parseTransportPorts.
func parseClientTransportPorts(transport string) (audio, control, timing int, err error) {
	for _, field := range strings.Split(transport, ";") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, convErr := strconv.Atoi(kv[1])
		if convErr != nil {
			continue
		}
		switch kv[0] {
		case "client_port", "port":
			audio = n
		case "control_port":
			control = n
		case "timing_port":
			timing = n
		}
	}
	if audio == 0 {
		return 0, 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: errMissingClientPort{}}
	}
	return audio, control, timing, nil
}

// parsePlistSetupPorts extracts the client's data/control ports from an
// AirPlay-2 plist-bodied SETUP request: a top-level "streams" array of
// per-stream dictionaries, each carrying "dataPort"/"controlPort" (spec.md
// 4.F's plist-bodied SETUP two-phase resource negotiation).
func parsePlistSetupPorts(body []byte) (audio, control int, err error) {
	root, err := plist.Unmarshal(body)
	if err != nil {
		return 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: err}
	}
	if root.Kind != plist.KindDict {
		return 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: errMissingClientPort{}}
	}

	streamsVal, ok := root.Dict.Get("streams")
	if !ok || streamsVal.Kind != plist.KindArray || len(streamsVal.Array) == 0 {
		return 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: errMissingClientPort{}}
	}
	stream := streamsVal.Array[0]
	if stream.Kind != plist.KindDict {
		return 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: errMissingClientPort{}}
	}

	dataPort, ok := stream.Dict.Get("dataPort")
	if !ok {
		return 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: errMissingClientPort{}}
	}
	audio = int(dataPort.Int)
	if ctrlPort, ok := stream.Dict.Get("controlPort"); ok {
		control = int(ctrlPort.Int)
	}
	return audio, control, nil
}

// buildPlistSetupResponse encodes the receiver's allocated ports as the
// plist SETUP response body the AirPlay-2 two-phase negotiation expects,
// the mirror of parsePlistSetupPorts.
func buildPlistSetupResponse(audioPort, controlPort, timingPort int) ([]byte, error) {
	stream := plist.NewDict()
	stream.Set("type", plist.Int(96))
	stream.Set("dataPort", plist.Int(int64(audioPort)))
	stream.Set("controlPort", plist.Int(int64(controlPort)))

	root := plist.NewDict()
	root.Set("timingPort", plist.Int(int64(timingPort)))
	root.Set("streams", &plist.Value{Kind: plist.KindArray, Array: []*plist.Value{{Kind: plist.KindDict, Dict: stream}}})

	return plist.Marshal(&plist.Value{Kind: plist.KindDict, Dict: root})
}

type errMissingClientPort struct{}

func (errMissingClientPort) Error() string { return "Transport header missing client_port" }

// buildDecoder returns the Decoder matching the ANNOUNCE body's codec
// and the nominal AES-CTR keystream stride for one encoded frame, the
// receive-side mirror of sender's buildEncoder.
func buildDecoder(desc *sdp.Description, format codec.Format) (codec.Decoder, int, error) {
	bytesPerSample := format.BitDepth / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	frameBytes := codec.FrameSamples * format.Channels * bytesPerSample

	switch desc.Codec {
	case sdp.CodecPCM:
		return codec.PCMCodec{Format: format}, frameBytes, nil
	case sdp.CodecALAC:
		return codec.ALACCodec{Format: format}, frameBytes, nil
	case sdp.CodecAAC:
		return codec.AACCodec{Format: format, Profile: codec.AACProfileLC}, frameBytes, nil
	default:
		return nil, 0, liberrors.ErrFormat{Reason: "unknown codec in ANNOUNCE: " + string(desc.Codec)}
	}
}

