package app

import (
	"encoding/base64"
	"math/big"
	"strings"
)

// DeepLink construit le lien de récupération d'un fichier stocké :
// https://<host>/<bot>?start=<token>, token = base64url sans padding de
// "get-<fileID*|storeChannel|>". Le produit dépasse vite int64 (canaux en
// -100XXXXXXXXXX), il est calculé en big.Int.
func DeepLink(host, bot string, fileID, storeChannel int64) string {
	n := new(big.Int).Mul(big.NewInt(fileID), new(big.Int).Abs(big.NewInt(storeChannel)))
	token := base64.RawURLEncoding.EncodeToString([]byte("get-" + n.String()))
	host = strings.Trim(strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://"), "/")
	return "https://" + host + "/" + strings.TrimPrefix(bot, "@") + "?start=" + token
}

// DecodeDeepLinkToken est l'inverse de DeepLink côté token.
func DecodeDeepLinkToken(token string, storeChannel int64) (int64, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, false
	}
	v, ok := strings.CutPrefix(string(raw), "get-")
	if !ok {
		return 0, false
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return 0, false
	}
	store := new(big.Int).Abs(big.NewInt(storeChannel))
	if store.Sign() == 0 {
		return 0, false
	}
	id, rem := new(big.Int).QuoRem(n, store, new(big.Int))
	if rem.Sign() != 0 || !id.IsInt64() {
		return 0, false
	}
	return id.Int64(), true
}
