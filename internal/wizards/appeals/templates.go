package appeals

import "github.com/infodesk/internal/wizards"

var disclosureTemplate = wizards.MustPaperTemplate("disclosure-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie proti čiastočnému sprístupneniu informácie{{if .FileNumber}}
(č. {{.FileNumber}}){{end}}</p>
<p>Povinná osoba sprístupnila požadovanú informáciu iba čiastočne a o zvyšku
žiadosti nerozhodla zákonným spôsobom. Žiadam, aby odvolací orgán rozhodnutie
zrušil a informáciu sprístupnil v plnom rozsahu.</p>
<p>{{.ApplicantName}}</p>`)

var refusalTemplate = wizards.MustPaperTemplate("refusal-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie proti rozhodnutiu o nesprístupnení informácie{{if .FileNumber}}
(č. {{.FileNumber}}){{end}}</p>
<p>S dôvodmi, pre ktoré povinná osoba odmietla informáciu sprístupniť, sa
nestotožňujem a žiadam, aby odvolací orgán rozhodnutie preskúmal.</p>
<p>{{.ApplicantName}}</p>`)

var refusalNoReasonTemplate = wizards.MustPaperTemplate("refusal-no-reason-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie proti rozhodnutiu bez uvedenia dôvodov{{if .FileNumber}}
(č. {{.FileNumber}}){{end}}</p>
<p>Rozhodnutie povinnej osoby neobsahuje žiadne odôvodnenie, čím je
nepreskúmateľné a nezákonné. Žiadam o jeho zrušenie.</p>
<p>{{.ApplicantName}}</p>`)

var advancementTemplate = wizards.MustPaperTemplate("advancement-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie proti postúpeniu žiadosti{{if .FileNumber}}
(č. {{.FileNumber}}){{end}}</p>
<p>Povinná osoba žiadosť postúpila, hoci o nej mala rozhodnúť sama. Žiadam,
aby odvolací orgán postúpenie preskúmal.</p>
<p>{{.ApplicantName}}</p>`)

var expirationTemplate = wizards.MustPaperTemplate("expiration-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie proti fiktívnemu rozhodnutiu</p>
<p>Povinná osoba v zákonnej lehote nerozhodla ani informáciu nesprístupnila.
Márnym uplynutím lehoty vzniklo fiktívne rozhodnutie o odmietnutí, proti
ktorému podávam toto odvolanie.</p>
<p>{{.ApplicantName}}</p>`)

var fallbackTemplate = wizards.MustPaperTemplate("fallback-appeal",
	"Odvolanie: {{.RequestSubject}}",
	`<p>{{.ObligeeName}}</p>
<p>Vec: Odvolanie{{if .FileNumber}} (č. {{.FileNumber}}){{end}}</p>
<p>Proti postupu povinnej osoby podávam odvolanie.</p>
<p>{{.ApplicantName}}</p>`)
