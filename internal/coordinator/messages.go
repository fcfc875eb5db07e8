package coordinator

// User-facing copy broadcast over the chat transcript.
const (
	busyMessage  = "⏳ Agent occupé, veuillez patienter..."
	startMessage = "🔄 Traitement en cours..."

	successFormat   = "🎉 Tâche terminée avec succès !\n\n📋 **Résultat:**\n%s\n\n🤖 Exécuté par %s"
	stepErrorFormat = "💥 **ERREUR AGENT**\n\n%s..."
	hardErrorFormat = "💥 Erreur lors de l'exécution:\n%s..."

	credentialErrSubstring = "Incorrect API key"
	credentialErrMessage   = "🔑 **ERREUR CLEF API OPENAI**\n\n" +
		"❌ Votre clé API OpenAI n'est pas valide ou a expiré.\n\n" +
		"🔧 **Solutions:**\n" +
		"1. Vérifiez votre clé sur https://platform.openai.com/account/api-keys\n" +
		"2. Générez une nouvelle clé si nécessaire\n" +
		"3. Vérifiez que vous avez du crédit sur votre compte\n" +
		"4. Mettez à jour la clé dans votre configuration"
)

var progressMessages = []string{
	"🧠 Analyse de la demande...",
	"🎯 Planification des actions...",
	"⚡ Exécution en cours...",
	"✨ Finalisation...",
}

// truncateRunes shortens s to at most n runes, leaving multi-byte
// characters intact.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
