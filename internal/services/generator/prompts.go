package generator

import (
	"fmt"
	"strings"
)

// Post formats. These double as the values stored in posts.format.
const (
	FormatSelling    = "selling"
	FormatCollection = "collection"
	FormatInfo       = "info"
	FormatPromo      = "promo"
)

// Formats returns the known formats in display order.
func Formats() []string {
	return []string{FormatSelling, FormatCollection, FormatInfo, FormatPromo}
}

// ValidFormat reports whether f is one of the known post formats.
func ValidFormat(f string) bool {
	switch f {
	case FormatSelling, FormatCollection, FormatInfo, FormatPromo:
		return true
	}
	return false
}

var formatNames = map[string]string{
	FormatSelling:    "Վաճառող փոստ",
	FormatCollection: "Ընտրանի",
	FormatInfo:       "Տեղեկատվական",
	FormatPromo:      "Ակցիա/Զեղչ",
}

// FormatName returns the Armenian display name for a format.
func FormatName(f string) string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return f
}

const systemPrompt = `Դու ShoppingTime Telegram-ալիքի խմբագրիչն ես։ Գրում ես տեքստեր 4 ձևաչափով․

1. Վաճառող փոստ՝
   - Կպչուն վերնագիր էմոջիով (5–8 բառ)
   - 2–3 նախադասություն օգուտի մասին
   - CTA կոճակ

2. Ընտրանի՝
   - Կարճ լիդ (1 նախադասություն)
   - Ապրանքների ցանկ (3–5, ամեն մեկը էմոջիով)
   - CTA կոճակ

3. Տեղեկատվական փոստ՝
   - Վերնագիր-հարց կամ խայծ
   - 3–4 խորհուրդ կամ փաստ
   - CTA կոճակ

4. Ակցիա/զեղչ՝
   - Հրատապություն («🔥 Այսօր», «🔥 Քիչ մնաց», «🔥 Հաշված օրեր»)
   - Շահավետ առաջարկ
   - CTA կոճակ

Տեքստի երկարությունը՝ 50–90 բառ։
Լսարանը՝ ShoppingTime ալիքի հետևորդներ։
Միշտ ավարտիր CTA-ով՝ «Փնտրել նմանատիպը», «Գնել զեղչով», «Իմանալ ավելին» և այլն։
Օգտագործիր էմոջիներ, բայց չափավոր։`

var formatPrompts = map[string]string{
	FormatSelling: `Ստեղծիր վաճառող փոստ հետևյալ կառուցվածքով:
- Կպչուն վերնագիր էմոջիով (5-8 բառ)
- 2-3 նախադասություն օգուտի և արժեքի մասին
- Ավարտիր CTA-ով («Գնել հիմա», «Փնտրել նմանատիպը»)
Տեքստը պետք է հուզական լինի և գործողության մղի:`,

	FormatCollection: `Ստեղծիր ընտրանի փոստ հետևյալ կառուցվածքով:
- Կարճ ներածական նախադասություն
- 3-5 ապրանքների ցանկ, ամեն մեկը էմոջիով
- CTA գործողության համար
Ամեն տարր պետք է կարճ և պարզ լինի:`,

	FormatInfo: `Ստեղծիր տեղեկատվական փոստ հետևյալ կառուցվածքով:
- Վերնագիր-հարց կամ հետաքրքիր փաստ
- 3-4 օգտակար խորհուրդ կամ տեղեկություն
- CTA խորհուրդ ստանալու կամ ավելին իմանալու համար
Տեքստը պետք է կրթական և օգտակար լինի:`,

	FormatPromo: `Ստեղծիր ակցիոն/զեղչային փոստ հետևյալ կառուցվածքով:
- Հրատապության վերնագիր («🔥 Այսօր», «🔥 Քիչ մնաց», «🔥 Հաշված օրեր»)
- Զեղչի կամ առաջարկի մանրամասները
- Ակտիվ CTA անմիջական գործողության համար
Տեքստը պետք է հրատապություն և FOMO ստեղծի:`,
}

func userPrompt(format, keywords, details string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ձևաչափ: %s\nԲանալի բառեր: %s\n\n", format, keywords)
	if p, ok := formatPrompts[format]; ok {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	if d := strings.TrimSpace(details); d != "" {
		fmt.Fprintf(&b, "Լրացուցիչ մանրամասներ: %s\n\n", d)
	}
	b.WriteString("Գրիր տեքստը վերևի կանոններով։")
	return b.String()
}

const improveSystemPrompt = `Դու ShoppingTime ալիքի տեքստերի խմբագրիչն ես։
Բարելավիր տրված տեքստը ըստ հրահանգների։
Պահպանիր բնական ոճը և հայերեն լեզուն։
Տեքստի երկարությունը թող մնա 50-90 բառ սահմաններում։`

func improveUserPrompt(original, instructions string) string {
	return fmt.Sprintf("Բնօրինակ տեքստ:\n%s\n\nԲարելավման հրահանգներ:\n%s\n\nԳրիր բարելավված տարբերակը:", original, instructions)
}
